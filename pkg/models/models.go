// Package models holds the feature model and error kinds shared by every
// stage of the splitter.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/twpayne/go-geos"
)

// ElevationKey is the only attribute key the splitter interprets.
const ElevationKey = "elevation"

// DefaultElevation tags the part of a building limit no plateau covers.
const DefaultElevation = 9999.0

// BoundingBox represents an axis-aligned rectangle in the geometry's coordinate space
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns the extent along the x axis
func (b BoundingBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns the extent along the y axis
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// Feature pairs a polygonal geometry with its attribute table.
type Feature struct {
	ID         string
	Geometry   *geos.Geom
	Properties map[string]any
}

// NewFeature creates a feature with an empty attribute table
func NewFeature(geom *geos.Geom) *Feature {
	return &Feature{Geometry: geom, Properties: map[string]any{}}
}

// Bounds returns the bounding box of the geometry, or nil when there is
// nothing to bound.
func (f *Feature) Bounds() *BoundingBox {
	if f == nil || f.Geometry == nil || f.Geometry.IsEmpty() {
		return nil
	}
	b := f.Geometry.Bounds()
	if b == nil || b.MinX > b.MaxX || b.MinY > b.MaxY {
		return nil
	}
	return &BoundingBox{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}
}

// Elevation returns the numeric elevation attribute.
func (f *Feature) Elevation() (float64, error) {
	raw, ok := f.Properties[ElevationKey]
	if !ok || raw == nil {
		return 0, ErrMissingAttribute
	}

	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case uint:
		v = float64(n)
	case uint32:
		v = float64(n)
	case uint64:
		v = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, &Error{Op: "feature.elevation", Kind: KindMissingAttribute, Index: -1, Err: err}
		}
		v = parsed
	default:
		return 0, &Error{
			Op:    "feature.elevation",
			Kind:  KindMissingAttribute,
			Index: -1,
			Err:   fmt.Errorf("%s has non-numeric type %T", ElevationKey, raw),
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &Error{
			Op:    "feature.elevation",
			Kind:  KindMissingAttribute,
			Index: -1,
			Err:   fmt.Errorf("%s is not finite", ElevationKey),
		}
	}
	return v, nil
}

// CloneProperties returns a shallow copy of the attribute table
func (f *Feature) CloneProperties() map[string]any {
	props := make(map[string]any, len(f.Properties)+1)
	for k, v := range f.Properties {
		props[k] = v
	}
	return props
}

// WithElevation builds a new feature carrying geom and a copy of the
// receiver's attributes with the elevation overwritten. The receiver is left
// untouched.
func (f *Feature) WithElevation(geom *geos.Geom, elevation float64) *Feature {
	props := f.CloneProperties()
	props[ElevationKey] = elevation
	return &Feature{Geometry: geom, Properties: props}
}

// Run is the record of one validate/merge/split execution.
type Run struct {
	ID             string
	CreatedAt      time.Time
	BuildingLimits []*Feature
	HeightPlateaus []*Feature
	Merged         []*Feature
	Fragments      []*Feature
}
