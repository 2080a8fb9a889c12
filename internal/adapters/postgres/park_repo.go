package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// Topology names as stored in the topologies table.
const (
	TopologyParks  = domain.TopologyParks
	TopologyTrails = domain.TopologyTrails
)

// ParkRepo implements ports.ParkSource and ports.ParkStore with pgx.
type ParkRepo struct {
	db *DB
}

// NewParkRepo creates a new ParkRepo.
func NewParkRepo(db *DB) *ParkRepo {
	return &ParkRepo{db: db}
}

// FetchAllParks returns every park in load order.
func (r *ParkRepo) FetchAllParks(ctx context.Context) ([]domain.Park, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT park_id, name, lat, lng
		FROM parks ORDER BY position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parks []domain.Park
	for rows.Next() {
		var (
			p        domain.Park
			id       int64
			lat, lng float64
		)
		if err := rows.Scan(&id, &p.Name, &lat, &lng); err != nil {
			return nil, err
		}
		p.ID = domain.ParkID(id)
		p.Center = domain.NewCoordinate(lat, lng)
		parks = append(parks, p)
	}
	return parks, rows.Err()
}

// FetchAllParksTopology returns the parks TopoJSON.
func (r *ParkRepo) FetchAllParksTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return r.topology(ctx, TopologyParks)
}

// FetchAllTrailsTopology returns the trails TopoJSON.
func (r *ParkRepo) FetchAllTrailsTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return r.topology(ctx, TopologyTrails)
}

func (r *ParkRepo) topology(ctx context.Context, name string) (domain.TopologyBlob, error) {
	var payload []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT payload FROM topologies WHERE name = $1`, name).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("topology %s: %w", name, err)
	}
	return domain.TopologyBlob(payload), nil
}

// FetchLookup returns one lookup table. A kind with no rows is an empty,
// loaded table.
func (r *ParkRepo) FetchLookup(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT tag, park_ids FROM park_lookups WHERE kind = $1
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := domain.LookupTable{}
	for rows.Next() {
		var (
			tag string
			ids []int64
		)
		if err := rows.Scan(&tag, &ids); err != nil {
			return nil, err
		}
		list := make([]domain.ParkID, len(ids))
		for i, id := range ids {
			list[i] = domain.ParkID(id)
		}
		table[tag] = list
	}
	return table, rows.Err()
}

// FetchFeatureGeometry returns one geometry layer of one park.
func (r *ParkRepo) FetchFeatureGeometry(ctx context.Context, parkID domain.ParkID, category domain.Category) (*domain.FeatureGeometry, error) {
	fg := &domain.FeatureGeometry{ParkID: parkID, Category: category}
	var minLat, minLon, maxLat, maxLon *float64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT payload, feature_count, min_lat, min_lon, max_lat, max_lon
		FROM feature_geometries WHERE park_id = $1 AND category = $2
	`, int64(parkID), string(category)).Scan(&fg.Payload, &fg.FeatureCount, &minLat, &minLon, &maxLat, &maxLon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s geometry for park %s: %w", category, parkID, err)
	}
	if err != nil {
		return nil, err
	}
	if minLat != nil && minLon != nil && maxLat != nil && maxLon != nil {
		fg.Bounds = &domain.Bounds{MinLat: *minLat, MinLon: *minLon, MaxLat: *maxLat, MaxLon: *maxLon}
	}
	return fg, nil
}

// ReplaceParks swaps the whole park list in one transaction.
func (r *ParkRepo) ReplaceParks(ctx context.Context, parks []domain.Park) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM parks`); err != nil {
		return fmt.Errorf("clear parks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, p := range parks {
		batch.Queue(`
			INSERT INTO parks (park_id, name, lat, lng, position)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (park_id) DO UPDATE
			SET name = EXCLUDED.name, lat = EXCLUDED.lat, lng = EXCLUDED.lng, updated_at = now()
		`, int64(p.ID), p.Name, p.Center.Lat(), p.Center.Lng(), i)
	}
	br := tx.SendBatch(ctx, batch)
	for range parks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReplaceLookup swaps every tag of one lookup kind.
func (r *ParkRepo) ReplaceLookup(ctx context.Context, kind domain.LookupKind, table domain.LookupTable) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM park_lookups WHERE kind = $1`, string(kind)); err != nil {
		return fmt.Errorf("clear %s lookup: %w", kind, err)
	}
	for tag, ids := range table {
		raw := make([]int64, len(ids))
		for i, id := range ids {
			raw[i] = int64(id)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO park_lookups (kind, tag, park_ids) VALUES ($1, $2, $3)
		`, string(kind), tag, raw); err != nil {
			return fmt.Errorf("insert %s/%s: %w", kind, tag, err)
		}
	}
	return tx.Commit(ctx)
}

// PutTopology stores a TopoJSON blob under name.
func (r *ParkRepo) PutTopology(ctx context.Context, name string, blob domain.TopologyBlob) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO topologies (name, payload) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, name, string(blob))
	return err
}

// PutFeatureGeometry stores one geometry layer of one park.
func (r *ParkRepo) PutFeatureGeometry(ctx context.Context, fg *domain.FeatureGeometry) error {
	var minLat, minLon, maxLat, maxLon *float64
	if b := fg.Bounds; b != nil {
		minLat, minLon, maxLat, maxLon = &b.MinLat, &b.MinLon, &b.MaxLat, &b.MaxLon
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO feature_geometries (park_id, category, payload, feature_count, min_lat, min_lon, max_lat, max_lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (park_id, category) DO UPDATE
		SET payload = EXCLUDED.payload, feature_count = EXCLUDED.feature_count,
		    min_lat = EXCLUDED.min_lat, min_lon = EXCLUDED.min_lon,
		    max_lat = EXCLUDED.max_lat, max_lon = EXCLUDED.max_lon,
		    updated_at = now()
	`, int64(fg.ParkID), string(fg.Category), string(fg.Payload), fg.FeatureCount, minLat, minLon, maxLat, maxLon)
	return err
}

// Counts returns row counts per table for the status endpoint.
func (r *ParkRepo) Counts(ctx context.Context) (map[string]int, error) {
	var parks, lookups, topologies, geometries int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM parks),
			(SELECT count(*) FROM park_lookups),
			(SELECT count(*) FROM topologies),
			(SELECT count(*) FROM feature_geometries)
	`).Scan(&parks, &lookups, &topologies, &geometries)
	if err != nil {
		return nil, err
	}
	return map[string]int{
		"parks":              parks,
		"park_lookups":       lookups,
		"topologies":         topologies,
		"feature_geometries": geometries,
	}, nil
}
