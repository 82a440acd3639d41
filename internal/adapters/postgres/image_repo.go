package postgres

import (
	"context"

	"github.com/samirrijal/pixgeo/internal/core/domain"
)

// ImageRepo implements ports.ImageRepository with pgx.
type ImageRepo struct {
	db *DB
}

// NewImageRepo creates a new ImageRepo.
func NewImageRepo(db *DB) *ImageRepo {
	return &ImageRepo{db: db}
}

// Upsert inserts an image or replaces the pose of an existing one.
func (r *ImageRepo) Upsert(ctx context.Context, img *domain.Image) error {
	var minLat, minLon, maxLat, maxLon *float64
	if fp := img.Footprint; fp != nil {
		minLat, minLon, maxLat, maxLon = &fp.MinLat, &fp.MinLon, &fp.MaxLat, &fp.MaxLon
	}
	p := img.Pose

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO images (id, filename, digest, latitude, longitude, altitude, horizontal_fov,
		                    gimbal_yaw, gimbal_pitch, pitch_reference, image_width, image_height,
		                    location, footprint, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        ST_SetSRID(ST_MakePoint($5, $4), 4326)::geography,
		        CASE WHEN $13::float8 IS NULL THEN NULL
		             ELSE ST_MakeEnvelope($14, $13, $16, $15, 4326)::geography END,
		        NULLIF($17, ''), $18)
		ON CONFLICT (id) DO UPDATE
		SET filename = EXCLUDED.filename, digest = EXCLUDED.digest,
		    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		    altitude = EXCLUDED.altitude, horizontal_fov = EXCLUDED.horizontal_fov,
		    gimbal_yaw = EXCLUDED.gimbal_yaw, gimbal_pitch = EXCLUDED.gimbal_pitch,
		    pitch_reference = EXCLUDED.pitch_reference,
		    image_width = EXCLUDED.image_width, image_height = EXCLUDED.image_height,
		    location = EXCLUDED.location, footprint = EXCLUDED.footprint,
		    storage_key = COALESCE(EXCLUDED.storage_key, images.storage_key)
	`, img.ID, img.Filename, img.Digest, p.Latitude, p.Longitude, p.Altitude, p.HorizontalFOV,
		p.GimbalYaw, p.GimbalPitch, string(p.PitchReference), p.ImageWidth, p.ImageHeight,
		minLat, minLon, maxLat, maxLon, img.StorageKey, img.CreatedAt)
	return err
}

// GetByID returns an image by ID.
func (r *ImageRepo) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	var img domain.Image
	var pitchRef string
	var minLat, minLon, maxLat, maxLon *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, COALESCE(filename, ''), COALESCE(digest, ''),
		       latitude, longitude, altitude, horizontal_fov, gimbal_yaw, gimbal_pitch,
		       pitch_reference, image_width, image_height,
		       ST_YMin(footprint::geometry), ST_XMin(footprint::geometry),
		       ST_YMax(footprint::geometry), ST_XMax(footprint::geometry),
		       COALESCE(storage_key, ''), created_at
		FROM images WHERE id = $1
	`, id).Scan(
		&img.ID, &img.Filename, &img.Digest,
		&img.Pose.Latitude, &img.Pose.Longitude, &img.Pose.Altitude, &img.Pose.HorizontalFOV,
		&img.Pose.GimbalYaw, &img.Pose.GimbalPitch,
		&pitchRef, &img.Pose.ImageWidth, &img.Pose.ImageHeight,
		&minLat, &minLon, &maxLat, &maxLon,
		&img.StorageKey, &img.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "image", id)
	}
	img.Pose.PitchReference = domain.PitchReference(pitchRef)
	if minLat != nil && minLon != nil && maxLat != nil && maxLon != nil {
		img.Footprint = &domain.Bounds{MinLat: *minLat, MinLon: *minLon, MaxLat: *maxLat, MaxLon: *maxLon}
	}
	return &img, nil
}
