package exiftool

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

const (
	tagPosition         = "GPSPosition"
	tagLatitudeRef      = "GPSLatitudeRef"
	tagLongitudeRef     = "GPSLongitudeRef"
	tagRelativeAltitude = "RelativeAltitude"
	tagFOV              = "FOV"
	tagGimbalYaw        = "GimbalYawDegree"
	tagGimbalPitch      = "GimbalPitchDegree"
	tagImageWidth       = "ImageWidth"
	tagImageHeight      = "ImageHeight"
)

var requiredTags = []string{
	tagPosition,
	tagLatitudeRef,
	tagLongitudeRef,
	tagRelativeAltitude,
	tagFOV,
	tagGimbalYaw,
	tagGimbalPitch,
}

// poseFromTags builds a pose from one exiftool JSON record. Image dimensions are
// left zero.
func poseFromTags(tags map[string]any) (*domain.CameraPose, error) {
	var missing []string
	for _, t := range requiredTags {
		if v, ok := tags[t]; !ok || v == nil || v == "" {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrMetadataUnavailable, strings.Join(missing, ", "))
	}

	position, ok := tags[tagPosition].(string)
	if !ok {
		return nil, malformed(tagPosition, tags[tagPosition])
	}
	lat, lon, err := parsePosition(position)
	if err != nil {
		return nil, err
	}

	latSign, err := hemisphereSign(tags[tagLatitudeRef], "north", "south")
	if err != nil {
		return nil, malformed(tagLatitudeRef, tags[tagLatitudeRef])
	}
	lonSign, err := hemisphereSign(tags[tagLongitudeRef], "east", "west")
	if err != nil {
		return nil, malformed(tagLongitudeRef, tags[tagLongitudeRef])
	}

	pose := &domain.CameraPose{
		Latitude:  latSign * math.Abs(lat),
		Longitude: lonSign * math.Abs(lon),
	}

	numeric := []struct {
		tag string
		dst *float64
	}{
		{tagRelativeAltitude, &pose.Altitude},
		{tagFOV, &pose.HorizontalFOV},
		{tagGimbalYaw, &pose.GimbalYaw},
		{tagGimbalPitch, &pose.GimbalPitch},
	}
	for _, n := range numeric {
		v, err := parseNumber(tags[n.tag])
		if err != nil {
			return nil, malformed(n.tag, tags[n.tag])
		}
		*n.dst = v
	}

	return pose, nil
}

func dimensionsFromTags(tags map[string]any) (int, int, error) {
	wv, wok := tags[tagImageWidth]
	hv, hok := tags[tagImageHeight]
	if !wok || !hok {
		return 0, 0, fmt.Errorf("%w: image dimensions unknown", domain.ErrMetadataUnavailable)
	}
	w, err := parseNumber(wv)
	if err != nil || w != math.Trunc(w) {
		return 0, 0, malformed(tagImageWidth, wv)
	}
	h, err := parseNumber(hv)
	if err != nil || h != math.Trunc(h) {
		return 0, 0, malformed(tagImageHeight, hv)
	}
	return int(w), int(h), nil
}

func malformed(tag string, v any) error {
	return fmt.Errorf("%w: %s = %v", domain.ErrMalformedMetadata, tag, v)
}

// parsePosition splits a composite "lat, lon" GPSPosition value.
func parsePosition(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, malformed(tagPosition, s)
	}
	lat, err := parseDMS(parts[0])
	if err != nil {
		return 0, 0, malformed(tagPosition, s)
	}
	lon, err := parseDMS(parts[1])
	if err != nil {
		return 0, 0, malformed(tagPosition, s)
	}
	return lat, lon, nil
}

// parseDMS parses `45 deg 30' 12.34" N`, `45 deg 30.2'` or `45.503`. A trailing
// hemisphere letter is accepted and ignored; the Ref tags carry the sign.
func parseDMS(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n > 0 && strings.ContainsRune("NSEW", rune(s[n-1])) {
		s = strings.TrimSpace(s[:n-1])
	}
	s = strings.NewReplacer("deg", " ", "°", " ", "'", " ", `"`, " ").Replace(s)

	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("want 1 to 3 components, got %d", len(fields))
	}

	var deg float64
	scale := 1.0
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("non-finite component %q", f)
		}
		if scale < 1 && (v < 0 || v >= 60) {
			return 0, fmt.Errorf("component %q out of range", f)
		}
		deg += math.Abs(v) * scale
		scale /= 60
	}
	return deg, nil
}

// parseNumber accepts a JSON number or a string such as "+100.20" or "73.7 deg".
func parseNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		fields := strings.Fields(x)
		if len(fields) == 0 {
			return 0, fmt.Errorf("empty value")
		}
		for _, unit := range fields[1:] {
			if strings.IndexFunc(unit, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
				return 0, fmt.Errorf("unexpected trailing %q", unit)
			}
		}
		f, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-finite value %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// hemisphereSign maps "North"/"N" style references onto +1 and "South"/"S" onto -1.
func hemisphereSign(v any, positive, negative string) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == positive || s == positive[:1]:
		return 1, nil
	case s == negative || s == negative[:1]:
		return -1, nil
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", s)
	}
}
