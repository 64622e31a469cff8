package rtree

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kass/building-limits/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func square(t testing.TB, minX, minY, maxX, maxY float64) *models.Feature {
	t.Helper()
	wkt := fmt.Sprintf("POLYGON ((%[1]g %[2]g, %[3]g %[2]g, %[3]g %[4]g, %[1]g %[4]g, %[1]g %[2]g))",
		minX, minY, maxX, maxY)
	g, err := geos.NewGeomFromWKT(wkt)
	require.NoError(t, err)
	return models.NewFeature(g)
}

func TestNewIndex(t *testing.T) {
	index := NewIndex(nil)
	assert.NotNil(t, index)
	assert.Equal(t, 0, index.Count())
	assert.Empty(t, index.Candidates(&models.BoundingBox{MaxX: 1, MaxY: 1}))
}

func TestCandidatesOrderedByPosition(t *testing.T) {
	features := []*models.Feature{
		square(t, 8, 8, 9, 9),
		square(t, 0, 0, 2, 2),
		square(t, 100, 100, 101, 101),
		square(t, 1, 1, 3, 3),
	}

	index := NewIndex(features)
	require.Equal(t, 4, index.Count())

	got := index.Candidates(&models.BoundingBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})
	assert.Equal(t, []int{0, 1, 3}, got)
}

func TestCandidatesIncludeTouchingBoxes(t *testing.T) {
	features := []*models.Feature{
		square(t, 0, 0, 5, 10),
		square(t, 5, 0, 10, 10),
		square(t, 20, 0, 30, 10),
	}

	index := NewIndex(features)

	testCases := []struct {
		name     string
		box      *models.BoundingBox
		expected []int
	}{
		{"shared edge", features[0].Bounds(), []int{0, 1}},
		{"right neighbour", features[1].Bounds(), []int{0, 1}},
		{"isolated", features[2].Bounds(), []int{2}},
		{"gap", &models.BoundingBox{MinX: 12, MinY: 0, MaxX: 15, MaxY: 10}, []int{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, index.Candidates(tc.box))
		})
	}
}

func TestUnindexedFeaturesAlwaysReturned(t *testing.T) {
	features := []*models.Feature{
		square(t, 0, 0, 1, 1),
		{Properties: map[string]any{}},
		nil,
		square(t, 50, 50, 51, 51),
	}

	index := NewIndex(features)
	assert.Equal(t, 2, index.Count())

	got := index.Candidates(&models.BoundingBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1})
	assert.Equal(t, []int{0, 1, 2}, got)

	// a query without a box cannot be pruned
	assert.Equal(t, []int{0, 1, 2, 3}, index.Candidates(nil))
}

func TestLargeCoordinatesStillTouch(t *testing.T) {
	// UTM-sized northings
	features := []*models.Feature{
		square(t, 500000, 6600000, 500010, 6600010),
		square(t, 500010, 6600000, 500020, 6600010),
	}

	index := NewIndex(features)
	assert.Equal(t, []int{0, 1}, index.Candidates(features[0].Bounds()))
}

func generateRandomSquares(t testing.TB, n int) []*models.Feature {
	features := make([]*models.Feature, n)
	for i := range features {
		x := rand.Float64() * 1000
		y := rand.Float64() * 1000
		features[i] = square(t, x, y, x+1+rand.Float64()*5, y+1+rand.Float64()*5)
	}
	return features
}

func TestCandidatesMatchBruteForce(t *testing.T) {
	features := generateRandomSquares(t, 500)
	index := NewIndex(features)

	query := &models.BoundingBox{MinX: 200, MinY: 200, MaxX: 400, MaxY: 400}
	var expected []int
	for i, f := range features {
		b := f.Bounds()
		if b.MaxX >= query.MinX && b.MinX <= query.MaxX && b.MaxY >= query.MinY && b.MinY <= query.MaxY {
			expected = append(expected, i)
		}
	}

	got := index.Candidates(query)
	assert.Subset(t, got, expected)
	for _, pos := range got {
		b := features[pos].Bounds()
		assert.True(t, b.MaxX >= query.MinX-1e-6 && b.MinX <= query.MaxX+1e-6)
	}
}

func BenchmarkCandidates(b *testing.B) {
	features := generateRandomSquares(b, 10000)
	index := NewIndex(features)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		x := rand.Float64() * 990
		y := rand.Float64() * 990
		_ = index.Candidates(&models.BoundingBox{MinX: x, MinY: y, MaxX: x + 10, MaxY: y + 10})
	}
}
