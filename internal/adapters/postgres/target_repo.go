package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/pixgeo/internal/core/domain"
	"github.com/samirrijal/pixgeo/internal/pkg/geospatial"
)

const targetColumns = `
	id, image_id, COALESCE(label, ''), confidence, pixel_x, pixel_y,
	ST_Y(location::geometry) as lat,
	ST_X(location::geometry) as lon,
	ground_distance_m, bearing_deg, out_of_bounds, created_at`

// TargetRepo implements ports.TargetRepository with pgx.
type TargetRepo struct {
	db *DB
}

// NewTargetRepo creates a new TargetRepo.
func NewTargetRepo(db *DB) *TargetRepo {
	return &TargetRepo{db: db}
}

// InsertBatch writes targets in one transaction using pgx.Batch.
// Rows that already exist are overwritten with the latest placement.
func (r *TargetRepo) InsertBatch(ctx context.Context, targets []domain.Target) error {
	batch := &pgx.Batch{}
	for _, t := range targets {
		batch.Queue(`
			INSERT INTO targets (id, image_id, label, confidence, pixel_x, pixel_y, location,
			                     ground_distance_m, bearing_deg, out_of_bounds, created_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6,
			        ST_SetSRID(ST_MakePoint($7, $8), 4326)::geography, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				label = EXCLUDED.label,
				confidence = EXCLUDED.confidence,
				pixel_x = EXCLUDED.pixel_x,
				pixel_y = EXCLUDED.pixel_y,
				location = EXCLUDED.location,
				ground_distance_m = EXCLUDED.ground_distance_m,
				bearing_deg = EXCLUDED.bearing_deg,
				out_of_bounds = EXCLUDED.out_of_bounds
		`, t.ID, t.ImageID, t.Label, t.Confidence, t.Pixel.X, t.Pixel.Y,
			t.Location.Lon, t.Location.Lat, t.GroundDistanceM, t.BearingDeg, t.OutOfBounds, t.CreatedAt)
	}
	return pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range targets {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		return br.Close()
	})
}

// GetByID returns a target by ID.
func (r *TargetRepo) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = $1`, id)
	t, err := scanTarget(row)
	if err != nil {
		return nil, notFound(err, "target", id)
	}
	return &t, nil
}

// ListByImage returns a page of an image's targets in detection order, plus the total.
func (r *TargetRepo) ListByImage(ctx context.Context, imageID string, offset, limit int) ([]domain.Target, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM targets WHERE image_id = $1`, imageID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+targetColumns+`
		FROM targets
		WHERE image_id = $1
		ORDER BY created_at, id
		OFFSET $2 LIMIT $3
	`, imageID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, 0, err
		}
		targets = append(targets, t)
	}
	return targets, total, rows.Err()
}

// FindNearby returns targets within radiusMeters using PostGIS ST_DWithin. An
// envelope on the indexed geometry narrows the candidates first.
func (r *TargetRepo) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]domain.Target, error) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(lat, lon, radiusMeters)
	// The envelope cannot wrap the antimeridian or cover a pole; fall back to the whole globe.
	if !(minLon >= -180 && maxLon <= 180 && minLat >= -90 && maxLat <= 90) {
		minLat, minLon, maxLat, maxLon = -90, -180, 90, 180
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+targetColumns+`,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) as distance
		FROM targets
		WHERE location::geometry && ST_MakeEnvelope($5, $6, $7, $8, 4326)
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance
		LIMIT $4
	`, lon, lat, radiusMeters, limit, minLon, minLat, maxLon, maxLat)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		var t domain.Target
		var dist float64
		if err := rows.Scan(
			&t.ID, &t.ImageID, &t.Label, &t.Confidence, &t.Pixel.X, &t.Pixel.Y,
			&t.Location.Lat, &t.Location.Lon,
			&t.GroundDistanceM, &t.BearingDeg, &t.OutOfBounds, &t.CreatedAt,
			&dist,
		); err != nil {
			return nil, err
		}
		t.Distance = &dist
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func scanTarget(row pgx.Row) (domain.Target, error) {
	var t domain.Target
	err := row.Scan(
		&t.ID, &t.ImageID, &t.Label, &t.Confidence, &t.Pixel.X, &t.Pixel.Y,
		&t.Location.Lat, &t.Location.Lon,
		&t.GroundDistanceM, &t.BearingDeg, &t.OutOfBounds, &t.CreatedAt,
	)
	return t, err
}
