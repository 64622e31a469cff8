// Package rtree indexes feature bounding boxes in an R-Tree so pairwise
// geometry predicates only run on candidates whose boxes meet.
package rtree

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/kass/building-limits/pkg/models"
)

const (
	// tolerance pads every box (relative to its coordinate magnitude) so that
	// boxes sharing only an edge are still reported; rtreego treats touching
	// rectangles as disjoint.
	tolerance   = 1e-9
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// spatialFeature wraps a feature position to implement rtreego.Spatial
type spatialFeature struct {
	pos  int
	rect rtreego.Rect
}

func (sf *spatialFeature) Bounds() rtreego.Rect {
	return sf.rect
}

// Index is a read-only R-Tree over the bounding boxes of a feature list.
// Results are positions in that list.
type Index struct {
	tree *rtreego.Rtree
	// positions whose bounding box is missing or not finite
	unindexed []int
	size      int
}

// NewIndex bulk-loads the bounding boxes of features. Features without a
// usable bounding box are kept aside and returned by every query, so the
// exact predicate still gets to see them.
func NewIndex(features []*models.Feature) *Index {
	items := make([]rtreego.Spatial, 0, len(features))
	var unindexed []int
	for i, f := range features {
		var box *models.BoundingBox
		if f != nil {
			box = f.Bounds()
		}
		rect, ok := toRect(box)
		if !ok {
			unindexed = append(unindexed, i)
			continue
		}
		items = append(items, &spatialFeature{pos: i, rect: rect})
	}

	return &Index{
		tree:      rtreego.NewTree(dimensions, minChildren, maxChildren, items...),
		unindexed: unindexed,
		size:      len(features),
	}
}

// Candidates returns, in ascending order, the positions of every feature
// whose bounding box meets box, plus the positions that could not be indexed.
// A box that cannot be indexed itself matches every position.
func (idx *Index) Candidates(box *models.BoundingBox) []int {
	rect, ok := toRect(box)
	if !ok {
		all := make([]int, idx.size)
		for i := range all {
			all[i] = i
		}
		return all
	}

	results := idx.tree.SearchIntersect(rect)
	positions := make([]int, 0, len(results)+len(idx.unindexed))
	positions = append(positions, idx.unindexed...)
	for _, result := range results {
		item, ok := result.(*spatialFeature)
		if !ok {
			continue
		}
		positions = append(positions, item.pos)
	}

	// Callers depend on input order for tie-breaking
	sort.Ints(positions)
	return positions
}

// Count returns the number of features held in the tree
func (idx *Index) Count() int {
	return idx.size - len(idx.unindexed)
}

func toRect(box *models.BoundingBox) (rtreego.Rect, bool) {
	if box == nil {
		return rtreego.Rect{}, false
	}
	for _, v := range []float64{box.MinX, box.MinY, box.MaxX, box.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rtreego.Rect{}, false
		}
	}

	pad := tolerance * math.Max(1, math.Max(
		math.Max(math.Abs(box.MinX), math.Abs(box.MaxX)),
		math.Max(math.Abs(box.MinY), math.Abs(box.MaxY)),
	))

	corner := rtreego.Point{box.MinX - pad, box.MinY - pad}
	lengths := []float64{box.Width() + 2*pad, box.Height() + 2*pad}

	rect, err := rtreego.NewRect(corner, lengths)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
