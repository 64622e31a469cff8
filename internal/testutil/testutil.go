// Package testutil provides shared geometry fixtures for tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/kass/building-limits/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

// WKT parses wkt or fails the test.
func WKT(t testing.TB, wkt string) *geos.Geom {
	t.Helper()
	g, err := geos.NewGeomFromWKT(wkt)
	require.NoError(t, err, "parse %q", wkt)
	return g
}

// Rect returns the WKT of an axis-aligned rectangle.
func Rect(minX, minY, maxX, maxY float64) string {
	return fmt.Sprintf("POLYGON ((%[1]g %[2]g, %[3]g %[2]g, %[3]g %[4]g, %[1]g %[4]g, %[1]g %[2]g))",
		minX, minY, maxX, maxY)
}

// Feature builds a feature from wkt with the given attributes.
func Feature(t testing.TB, wkt string, props map[string]any) *models.Feature {
	t.Helper()
	if props == nil {
		props = map[string]any{}
	}
	return &models.Feature{Geometry: WKT(t, wkt), Properties: props}
}

// Square builds an attribute-less rectangular feature.
func Square(t testing.TB, minX, minY, maxX, maxY float64) *models.Feature {
	t.Helper()
	return Feature(t, Rect(minX, minY, maxX, maxY), nil)
}

// Plateau builds a rectangular height plateau.
func Plateau(t testing.TB, minX, minY, maxX, maxY, elevation float64) *models.Feature {
	t.Helper()
	return Feature(t, Rect(minX, minY, maxX, maxY), map[string]any{models.ElevationKey: elevation})
}

// TotalArea sums the areas of the features' geometries.
func TotalArea(features []*models.Feature) float64 {
	var total float64
	for _, f := range features {
		total += f.Geometry.Area()
	}
	return total
}

// Elevations lists the elevation of every feature, in order.
func Elevations(t testing.TB, features []*models.Feature) []float64 {
	t.Helper()
	out := make([]float64, len(features))
	for i, f := range features {
		e, err := f.Elevation()
		require.NoError(t, err)
		out[i] = e
	}
	return out
}
