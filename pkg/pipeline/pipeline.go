// Package pipeline validates building limits and height plateaus, merges the
// building limits and splits them against the plateaus.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kass/building-limits/pkg/geo"
	"github.com/kass/building-limits/pkg/logger"
	"github.com/kass/building-limits/pkg/merge"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/split"
	"github.com/kass/building-limits/pkg/store"
)

// Options configures a Pipeline.
type Options struct {
	Strategy         merge.Strategy
	DefaultElevation float64
	// Store, when set, receives every successful run.
	Store store.Store
}

// DefaultOptions returns anchor merging, the 9999 sentinel and no store.
func DefaultOptions() Options {
	return Options{
		Strategy:         merge.StrategyAnchor,
		DefaultElevation: models.DefaultElevation,
	}
}

// Pipeline runs validate, merge and split as one unit.
type Pipeline struct {
	opts   Options
	ticket *Ticket
}

// New creates a pipeline sharing the process-wide ticket.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts, ticket: &processTicket}
}

// SplitBuildingLimits validates both inputs, merges overlapping building
// limits and splits them against the height plateaus with default options.
// It returns either every fragment or an error, never both.
func SplitBuildingLimits(buildingLimits, heightPlateaus []*models.Feature) ([]*models.Feature, error) {
	run, err := New(DefaultOptions()).Run(context.Background(), buildingLimits, heightPlateaus)
	if err != nil {
		return nil, err
	}
	return run.Fragments, nil
}

// Run executes the pipeline while holding the process-wide ticket. The
// context only bounds persistence; validation, merging and splitting run to
// completion once started.
func (p *Pipeline) Run(ctx context.Context, buildingLimits, heightPlateaus []*models.Feature) (*models.Run, error) {
	p.ticket.Acquire()
	defer p.ticket.Release()

	log := logger.L()
	start := time.Now()

	if err := ValidateBuildingLimits(buildingLimits); err != nil {
		return nil, err
	}
	if err := ValidateHeightPlateaus(heightPlateaus); err != nil {
		return nil, err
	}

	var (
		merged    []*models.Feature
		fragments []*models.Feature
		splitErr  error
	)
	err := geo.Guard(func() {
		merged = merge.Merge(buildingLimits, p.opts.Strategy)
		fragments, splitErr = split.SplitWithOptions(merged, heightPlateaus, split.Options{
			DefaultElevation: p.opts.DefaultElevation,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("geometry engine failure: %w", err)
	}
	if splitErr != nil {
		return nil, splitErr
	}

	run := &models.Run{
		ID:             uuid.NewString(),
		CreatedAt:      start.UTC(),
		BuildingLimits: buildingLimits,
		HeightPlateaus: heightPlateaus,
		Merged:         merged,
		Fragments:      fragments,
	}

	log.Info("pipeline.done",
		"run", run.ID,
		"building_limits", len(buildingLimits),
		"merged", len(merged),
		"height_plateaus", len(heightPlateaus),
		"fragments", len(fragments),
		"strategy", string(p.opts.Strategy),
		"elapsed", time.Since(start),
	)

	if p.opts.Store != nil {
		if err := p.opts.Store.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
	}

	return run, nil
}
