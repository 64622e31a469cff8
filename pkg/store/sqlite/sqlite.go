// Package sqlite persists runs in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/store"
	_ "modernc.org/sqlite"
)

// Feature roles within a run.
const (
	RoleBuildingLimit = "building_limit"
	RoleHeightPlateau = "height_plateau"
	RoleMerged        = "merged"
	RoleFragment      = "fragment"
)

// schema.sql creates the runs table and the features table holding every
// input, merged and output feature of a run as GeoJSON geometry.
//
//go:embed schema.sql
var schemaSQL string

// Store is a store.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps SQLite from reporting busy
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveRun writes the run and all its features in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, building_limits, height_plateaus, fragments)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano),
		len(run.BuildingLimits), len(run.HeightPlateaus), len(run.Fragments))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO features (run_id, role, position, feature_id, elevation, area, geometry, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	groups := []struct {
		role     string
		features []*models.Feature
	}{
		{RoleBuildingLimit, run.BuildingLimits},
		{RoleHeightPlateau, run.HeightPlateaus},
		{RoleMerged, run.Merged},
		{RoleFragment, run.Fragments},
	}

	for _, g := range groups {
		for i, f := range g.features {
			row, err := encodeFeature(f)
			if err != nil {
				return fmt.Errorf("%s %d: %w", g.role, i, err)
			}
			if _, err := stmt.ExecContext(ctx, run.ID, g.role, i,
				row.id, row.elevation, row.area, row.geometry, row.properties); err != nil {
				return fmt.Errorf("failed to insert %s %d: %w", g.role, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// Fragment is a stored output feature.
type Fragment struct {
	FeatureID string
	Elevation float64
	Area      float64
	GeoJSON   string
}

// Fragments returns the fragments of a run in emission order.
func (s *Store) Fragments(ctx context.Context, runID string) ([]Fragment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(feature_id, ''), COALESCE(elevation, 0), area, geometry
		FROM features
		WHERE run_id = ? AND role = ?
		ORDER BY position
	`, runID, RoleFragment)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments: %w", err)
	}
	defer rows.Close()

	var out []Fragment
	for rows.Next() {
		var f Fragment
		if err := rows.Scan(&f.FeatureID, &f.Elevation, &f.Area, &f.GeoJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type featureRow struct {
	id         sql.NullString
	elevation  sql.NullFloat64
	area       float64
	geometry   string
	properties string
}

func encodeFeature(f *models.Feature) (featureRow, error) {
	var row featureRow
	if f == nil || f.Geometry == nil {
		return row, fmt.Errorf("feature has no geometry")
	}

	props, err := json.Marshal(f.Properties)
	if err != nil {
		return row, fmt.Errorf("failed to encode properties: %w", err)
	}

	row.id = sql.NullString{String: f.ID, Valid: f.ID != ""}
	if e, err := f.Elevation(); err == nil {
		row.elevation = sql.NullFloat64{Float64: e, Valid: true}
	}
	row.area = f.Geometry.Area()
	row.geometry = f.Geometry.ToGeoJSON(0)
	row.properties = string(props)
	return row, nil
}
