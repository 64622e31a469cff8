package geo

import (
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/rtree"
)

// IsValidPolygon reports whether f is present, has a geometry with a
// bounding box, is non-empty, and is topologically valid according to GEOS.
func IsValidPolygon(f *models.Feature) bool {
	if f == nil {
		return false
	}

	if f.Geometry == nil || f.Bounds() == nil {
		return false
	}

	if f.Geometry.IsEmpty() || !f.Geometry.IsValid() {
		return false
	}

	return true
}

// InvalidReason describes why IsValidPolygon rejects f.
func InvalidReason(f *models.Feature) string {
	switch {
	case f == nil:
		return "feature is nil"
	case f.Geometry == nil:
		return "geometry is nil"
	case f.Geometry.IsEmpty():
		return "geometry is empty"
	case f.Bounds() == nil:
		return "bounding box is missing"
	case !f.Geometry.IsValid():
		return f.Geometry.IsValidReason()
	}
	return ""
}

// HasOverlaps reports whether any two features properly overlap: their
// interiors intersect and neither contains the other. Touching and nested
// features are not overlaps.
func HasOverlaps(features []*models.Feature) (bool, error) {
	_, _, found, err := OverlappingPair(features)
	return found, err
}

// OverlappingPair returns the first pair (i < j, in input order) of properly
// overlapping features. An engine failure during the scan is reported as a
// KindOverlapValidation error wrapping the original cause.
func OverlappingPair(features []*models.Feature) (int, int, bool, error) {
	first, second := -1, -1

	err := Guard(func() {
		index := rtree.NewIndex(features)
		for i, a := range features {
			for _, j := range index.Candidates(a.Bounds()) {
				if j <= i {
					continue
				}
				if a.Geometry.Overlaps(features[j].Geometry) {
					first, second = i, j
					return
				}
			}
		}
	})
	if err != nil {
		return -1, -1, false, &models.Error{
			Op:    "geo.has_overlaps",
			Kind:  models.KindOverlapValidation,
			Index: -1,
			Err:   err,
		}
	}

	return first, second, first >= 0, nil
}
