// Package postgis persists runs into a PostGIS database so fragments can be
// queried spatially next to other site data.
package postgis

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kass/building-limits/pkg/logger"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/store"
	_ "github.com/lib/pq"
)

// Store is a store.Store backed by PostGIS.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database described by dsn (a lib/pq connection
// string or URL) and creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates the tables and the spatial index if they are missing.
func (s *Store) InitSchema() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS postgis;`,

		`CREATE TABLE IF NOT EXISTS split_runs (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS split_features (
			run_id TEXT NOT NULL REFERENCES split_runs (id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			position INTEGER NOT NULL,
			feature_id TEXT,
			elevation DOUBLE PRECISION,
			properties JSONB NOT NULL,
			geom GEOMETRY(GEOMETRY, 0) NOT NULL,
			PRIMARY KEY (run_id, role, position)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_split_features_geom ON split_features USING GIST (geom);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}

	return nil
}

// SaveRun inserts the run and every feature in a single transaction.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO split_runs (id, created_at) VALUES ($1, $2)`,
		run.ID, run.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO split_features (run_id, role, position, feature_id, elevation, properties, geom)
		VALUES ($1, $2, $3, $4, $5, $6, ST_SetSRID(ST_GeomFromGeoJSON($7), 0))
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	groups := []struct {
		role     string
		features []*models.Feature
	}{
		{"building_limit", run.BuildingLimits},
		{"height_plateau", run.HeightPlateaus},
		{"merged", run.Merged},
		{"fragment", run.Fragments},
	}

	inserted := 0
	for _, g := range groups {
		for i, f := range g.features {
			if f == nil || f.Geometry == nil {
				return fmt.Errorf("%s %d has no geometry", g.role, i)
			}

			props, err := json.Marshal(f.Properties)
			if err != nil {
				return fmt.Errorf("failed to encode properties of %s %d: %w", g.role, i, err)
			}

			var featureID, elevation any
			if f.ID != "" {
				featureID = f.ID
			}
			if e, err := f.Elevation(); err == nil {
				elevation = e
			}

			if _, err := stmt.ExecContext(ctx, run.ID, g.role, i, featureID, elevation,
				string(props), f.Geometry.ToGeoJSON(0)); err != nil {
				return fmt.Errorf("failed to insert %s %d: %w", g.role, i, err)
			}
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	logger.L().Debug("postgis.save_run", "run", run.ID, "features", inserted, "elapsed", time.Since(start))
	return nil
}

// QueryFragments returns the fragments whose geometry meets box, across all
// runs, as GeoJSON with their elevation.
func (s *Store) QueryFragments(ctx context.Context, box models.BoundingBox) ([]StoredFragment, error) {
	query := `
		SELECT run_id, COALESCE(feature_id, ''), COALESCE(elevation, 0), ST_AsGeoJSON(geom)
		FROM split_features
		WHERE role = 'fragment' AND geom && ST_MakeEnvelope($1, $2, $3, $4)
		ORDER BY run_id, position
	`

	rows, err := s.db.QueryContext(ctx, query, box.MinX, box.MinY, box.MaxX, box.MaxY)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var results []StoredFragment
	for rows.Next() {
		var f StoredFragment
		if err := rows.Scan(&f.RunID, &f.FeatureID, &f.Elevation, &f.GeoJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}

// StoredFragment is a fragment row read back from PostGIS.
type StoredFragment struct {
	RunID     string
	FeatureID string
	Elevation float64
	GeoJSON   string
}

// Count returns the number of stored runs
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM split_runs").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// GetDatabaseStats returns table sizes and row counts
func (s *Store) GetDatabaseStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var tableSize, indexSize string
	err := s.db.QueryRowContext(ctx, `
		SELECT
			pg_size_pretty(pg_total_relation_size('split_features')) as total_size,
			pg_size_pretty(pg_indexes_size('split_features')) as index_size
	`).Scan(&tableSize, &indexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get table size: %w", err)
	}
	stats["table_size"] = tableSize
	stats["index_size"] = indexSize

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats["run_count"] = count

	return stats, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
