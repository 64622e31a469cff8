// Package split cuts building limits along height plateaus and tags every
// piece with an elevation.
package split

import (
	"fmt"

	"github.com/kass/building-limits/pkg/geo"
	"github.com/kass/building-limits/pkg/logger"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/rtree"
)

// Options tunes the splitter.
type Options struct {
	// DefaultElevation tags whatever no plateau covers.
	DefaultElevation float64
}

// DefaultOptions returns the options used by Split.
func DefaultOptions() Options {
	return Options{DefaultElevation: models.DefaultElevation}
}

// Split runs SplitWithOptions with DefaultOptions.
func Split(buildingLimits, heightPlateaus []*models.Feature) ([]*models.Feature, error) {
	return SplitWithOptions(buildingLimits, heightPlateaus, DefaultOptions())
}

// SplitWithOptions splits every building limit against the plateaus in input
// order. For each plateau sharing interior with what is left of the building
// limit, the intersection is emitted with the plateau's elevation and removed
// from the remainder. Whatever remains at the end is emitted with the
// default elevation. Fragments never have empty geometry, and the attribute
// tables of the inputs are never modified.
//
// Building limits are expected not to overlap each other (see package merge)
// and plateaus are expected to carry an elevation.
func SplitWithOptions(buildingLimits, heightPlateaus []*models.Feature, opts Options) ([]*models.Feature, error) {
	elevations := make([]float64, len(heightPlateaus))
	for k, hp := range heightPlateaus {
		e, err := hp.Elevation()
		if err != nil {
			return nil, &models.Error{Op: "split.elevation", Kind: models.KindMissingAttribute, Index: k, Err: err}
		}
		elevations[k] = e
	}

	index := rtree.NewIndex(heightPlateaus)
	log := logger.L()

	var fragments []*models.Feature
	for n, bl := range buildingLimits {
		pieces := 0
		emit := func(f *models.Feature) {
			if bl.ID != "" {
				f.ID = fmt.Sprintf("%s/%d", bl.ID, pieces)
			}
			pieces++
			fragments = append(fragments, f)
		}

		remaining := bl.Geometry.Clone()
		for _, k := range index.Candidates(bl.Bounds()) {
			if geo.IsVoid(remaining) {
				break
			}

			hp := heightPlateaus[k]
			if !geo.SharesInterior(remaining, hp.Geometry) {
				continue
			}

			piece := geo.Polygonal(remaining.Intersection(hp.Geometry))
			if piece == nil {
				continue
			}

			emit(bl.WithElevation(piece, elevations[k]))
			remaining = geo.Polygonal(remaining.Difference(piece))
		}

		if remaining = geo.Polygonal(remaining); remaining != nil {
			emit(bl.WithElevation(remaining, opts.DefaultElevation))
		}

		log.Debug("split.building_limit", "index", n, "id", bl.ID, "fragments", pieces)
	}

	return fragments, nil
}
