package pipeline

import (
	"errors"
	"fmt"

	"github.com/kass/building-limits/pkg/geo"
	"github.com/kass/building-limits/pkg/models"
)

// ValidateBuildingLimits checks that the list is non-empty and every member
// is a valid polygon.
func ValidateBuildingLimits(features []*models.Feature) error {
	return validatePolygons("pipeline.building_limits", features)
}

// ValidateHeightPlateaus checks the polygons like ValidateBuildingLimits, then
// that no two plateaus properly overlap and that each carries a numeric
// elevation.
func ValidateHeightPlateaus(features []*models.Feature) error {
	const op = "pipeline.height_plateaus"

	if err := validatePolygons(op, features); err != nil {
		return err
	}

	i, j, found, err := geo.OverlappingPair(features)
	if err != nil {
		return err
	}
	if found {
		return &models.Error{
			Op:    op,
			Kind:  models.KindOverlapDetected,
			Index: j,
			Err:   fmt.Errorf("height plateau %d overlaps height plateau %d", i, j),
		}
	}

	for k, f := range features {
		if _, err := f.Elevation(); err != nil {
			return &models.Error{
				Op:    op,
				Kind:  models.KindMissingAttribute,
				Index: k,
				Err:   fmt.Errorf("%s: %w", models.ElevationKey, err),
			}
		}
	}

	return nil
}

func validatePolygons(op string, features []*models.Feature) error {
	if len(features) == 0 {
		return &models.Error{Op: op, Kind: models.KindEmptyInput, Index: -1}
	}

	for k, f := range features {
		var (
			valid  bool
			reason string
		)
		err := geo.Guard(func() {
			if valid = geo.IsValidPolygon(f); !valid {
				reason = geo.InvalidReason(f)
			}
		})
		if err == nil && !valid {
			err = errors.New(reason)
		}
		if err != nil {
			return &models.Error{Op: op, Kind: models.KindInvalidPolygon, Index: k, Err: err}
		}
	}

	return nil
}
