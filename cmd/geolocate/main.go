// Command geolocate prints the ground coordinates of pixels in an aerial frame.
//
//	geolocate --image DJI_0001.JPG --pixel 2000,1500 [--pixel x,y ...] [--pitch-reference nadir] [--json]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/samirrijal/pixgeo/internal/adapters/exiftool"
	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/core/usecases"
	"github.com/samirrijal/pixgeo/internal/pkg/config"
	"github.com/samirrijal/pixgeo/internal/pkg/logging"
)

// Short flag names map onto config keys so they bind through viper.
var flagKeys = map[string]string{
	"pitch-reference": "projection.pitch_reference",
	"exiftool":        "exiftool.path",
	"log-level":       "log.level",
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("geolocate", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if key, ok := flagKeys[name]; ok {
			return pflag.NormalizedName(key)
		}
		return pflag.NormalizedName(name)
	})

	image := flags.String("image", "", "path to the aerial frame")
	pixelArgs := flags.StringArray("pixel", nil, "pixel as x,y (repeatable)")
	asJSON := flags.Bool("json", false, "print full projection results as JSON")
	flags.String("pitch-reference", "", "gimbal pitch convention: horizon or nadir")
	flags.String("exiftool", "", "path to the exiftool binary")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *image == "" || len(*pixelArgs) == 0 {
		fmt.Fprintln(stderr, "usage: geolocate --image FILE --pixel x,y [--pixel x,y ...] [--pitch-reference horizon|nadir] [--json]")
		return 2
	}

	pixels := make([]domain.PixelLocation, 0, len(*pixelArgs))
	for _, arg := range *pixelArgs {
		px, err := parsePixel(arg)
		if err != nil {
			fmt.Fprintf(stderr, "invalid --pixel %q: %v\n", arg, err)
			return 2
		}
		pixels = append(pixels, px)
	}

	cfg, err := config.LoadWithFlags("pixgeo-cli", flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	slog.SetDefault(logging.New(stderr, cfg.Log.Level, "text"))

	poses := exiftool.New(exiftool.Config{
		Path:           cfg.Exiftool.Path,
		Timeout:        cfg.Exiftool.Timeout(),
		PitchReference: cfg.PitchReference(),
	})
	geo := usecases.NewGeolocationService(poses, nil, nil, nil, nil, nil)
	geo.SetSource("cli")

	ctx := context.Background()
	pose, err := geo.PoseForImage(ctx, *image, "")
	if err != nil {
		slog.Error("read pose", "image", *image, "error", err)
		return 1
	}
	slog.Debug("pose", "image", *image, "pose", *pose)

	results, err := geo.Project(ctx, *pose, pixels)
	if err != nil {
		slog.Error("project", "image", *image, "error", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			slog.Error("encode results", "error", err)
			return 1
		}
	} else {
		printResults(stdout, stderr, results)
	}

	for _, r := range results {
		if r.Error != "" {
			return 1
		}
	}
	return 0
}

// printResults writes "lat lon" per pixel; failed pixels go to stderr.
func printResults(stdout, stderr io.Writer, results []domain.ProjectionResult) {
	for _, r := range results {
		if r.Location == nil {
			fmt.Fprintf(stderr, "%g,%g: %s\n", r.Pixel.X, r.Pixel.Y, r.Error)
			continue
		}
		fmt.Fprintf(stdout, "%.8f %.8f\n", r.Location.Lat, r.Location.Lon)
		if r.OutOfBounds {
			fmt.Fprintf(stderr, "%g,%g: outside the frame, extrapolated\n", r.Pixel.X, r.Pixel.Y)
		}
	}
}

func parsePixel(s string) (domain.PixelLocation, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return domain.PixelLocation{}, errors.New("expected x,y")
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return domain.PixelLocation{}, fmt.Errorf("x: %w", err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return domain.PixelLocation{}, fmt.Errorf("y: %w", err)
	}
	px := domain.PixelLocation{X: x, Y: y}
	if !px.IsFinite() {
		return domain.PixelLocation{}, fmt.Errorf("pixel %q is not finite", s)
	}
	return px, nil
}
