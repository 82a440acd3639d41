package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

const (
	maxPixelsPerRequest     = 1000
	maxDetectionsPerRequest = 1000
	maxNearbyRadiusM        = 10000
)

// ProjectionRequest is the body of POST /v1/projections.
type ProjectionRequest struct {
	Pose   *domain.CameraPose     `json:"pose"`
	Pixels []domain.PixelLocation `json:"pixels"`
}

// ProjectionsHandler places pixels on the ground for a caller-supplied pose.
func ProjectionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ProjectionRequest
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return errBadRequest(c, "invalid request body: "+err.Error())
		}
		if req.Pose == nil {
			return errBadRequest(c, "pose is required")
		}
		if len(req.Pixels) == 0 {
			return errBadRequest(c, "at least one pixel is required")
		}
		if len(req.Pixels) > maxPixelsPerRequest {
			return errBadRequest(c, fmt.Sprintf("too many pixels (max %d)", maxPixelsPerRequest))
		}

		pose := deps.withPitchReference(*req.Pose)
		results, err := deps.Geolocation.Project(c.UserContext(), pose, req.Pixels)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"results": results})
	}
}

// ImagePoseHandler reads the capture pose of an uploaded frame.
func ImagePoseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		up, err := deps.saveUpload(c, "image")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		defer up.remove()

		pose, err := deps.Geolocation.PoseForImage(c.UserContext(), up.path, up.digest)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"filename": up.filename,
			"digest":   up.digest,
			"pose":     pose,
		})
	}
}

// GeolocateImageHandler geolocates the detections of an uploaded frame.
// Multipart fields: image (file), detections (JSON array), optional pose
// (JSON, overrides the embedded metadata), image_id and strict.
func GeolocateImageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := domain.GeolocationRequest{ImageID: c.FormValue("image_id")}

		if raw := c.FormValue("detections"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Detections); err != nil {
				return errBadRequest(c, "detections must be a JSON array: "+err.Error())
			}
		}
		if len(req.Detections) > maxDetectionsPerRequest {
			return errBadRequest(c, fmt.Sprintf("too many detections (max %d)", maxDetectionsPerRequest))
		}
		if raw := c.FormValue("pose"); raw != "" {
			var pose domain.CameraPose
			if err := json.Unmarshal([]byte(raw), &pose); err != nil {
				return errBadRequest(c, "pose must be a JSON object: "+err.Error())
			}
			pose = deps.withPitchReference(pose)
			req.Pose = &pose
		}
		if raw := c.FormValue("strict"); raw != "" {
			strict, err := strconv.ParseBool(raw)
			if err != nil {
				return errBadRequest(c, "strict must be a boolean")
			}
			req.Strict = strict
		}

		up, err := deps.saveUpload(c, "image")
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		defer up.remove()
		req.ImagePath = up.path
		req.Filename = up.filename
		req.Digest = up.digest

		res, err := deps.Geolocation.GeolocateImage(c.UserContext(), req)
		if err != nil {
			return errFromDomain(c, err)
		}

		LoggerFromCtx(c.UserContext()).Info("image geolocated",
			"image_id", res.Image.ID,
			"targets", len(res.Targets),
			"failures", len(res.Failures),
		)
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// GetImageHandler returns a stored image and its pose.
func GetImageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "image id is required")
		}
		img, err := deps.Geolocation.GetImage(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(img)
	}
}

// ImageTargetsHandler lists the targets found in an image, paginated.
func ImageTargetsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "image id is required")
		}
		offset, limit := parsePagination(c, 50, 200)

		targets, total, err := deps.Targets.ListByImage(c.UserContext(), id, offset, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if targets == nil {
			targets = []domain.Target{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: targets, Pagination: pg})
	}
}

// NearbyTargetsHandler returns targets within a radius of a point.
func NearbyTargetsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		lat, err := strconv.ParseFloat(c.Query("lat"), 64)
		if err != nil || lat < -90 || lat > 90 {
			return errBadRequest(c, "lat must be a number between -90 and 90")
		}
		lon, err := strconv.ParseFloat(c.Query("lon"), 64)
		if err != nil || lon < -180 || lon > 180 {
			return errBadRequest(c, "lon must be a number between -180 and 180")
		}
		radius := c.QueryFloat("radius", 100)
		if radius <= 0 || radius > maxNearbyRadiusM {
			return errBadRequest(c, fmt.Sprintf("radius must be between 1 and %d meters", maxNearbyRadiusM))
		}
		limit := c.QueryInt("limit", 20)

		targets, err := deps.Targets.FindNearby(c.UserContext(), lat, lon, radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if targets == nil {
			targets = []domain.Target{}
		}
		return c.JSON(targets)
	}
}

// GetTargetHandler returns a single target by ID.
func GetTargetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "target id is required")
		}
		target, err := deps.Targets.GetByID(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(target)
	}
}

func (d *Dependencies) withPitchReference(p domain.CameraPose) domain.CameraPose {
	if p.PitchReference == "" && d.PitchReference != "" {
		p.PitchReference = d.PitchReference
	}
	return p
}

type upload struct {
	path     string
	filename string
	digest   string
}

func (u upload) remove() { _ = os.Remove(u.path) }

// saveUpload spools a multipart file to disk, hashing it on the way, so the
// pose provider can read it by path.
func (d *Dependencies) saveUpload(c *fiber.Ctx, field string) (upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return upload{}, fmt.Errorf("multipart field %q with the image file is required", field)
	}

	src, err := fh.Open()
	if err != nil {
		return upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := filepath.Base(fh.Filename)
	dst, err := os.CreateTemp(d.UploadDir, "pixgeo-*"+filepath.Ext(name))
	if err != nil {
		return upload{}, fmt.Errorf("spool upload: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return upload{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return upload{}, fmt.Errorf("spool upload: %w", err)
	}

	return upload{path: dst.Name(), filename: name, digest: hex.EncodeToString(h.Sum(nil))}, nil
}
