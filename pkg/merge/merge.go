// Package merge reduces a list of building limits to a list whose members
// do not overlap, by unioning groups of intersecting polygons.
package merge

import (
	"fmt"

	"github.com/kass/building-limits/pkg/geo"
	"github.com/kass/building-limits/pkg/models"
	"github.com/kass/building-limits/pkg/rtree"
	"github.com/twpayne/go-geos"
)

// Strategy selects how intersecting polygons are grouped.
type Strategy string

const (
	// StrategyAnchor groups every polygon that directly intersects the
	// first unprocessed polygon. A polygon reaching the group only through
	// another member is not pulled in and becomes an anchor later.
	StrategyAnchor Strategy = "anchor"
	// StrategyTransitive groups connected components of the intersects
	// graph.
	StrategyTransitive Strategy = "transitive"
)

// ParseStrategy validates a strategy name; the empty string selects
// StrategyAnchor.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyAnchor:
		return StrategyAnchor, nil
	case StrategyTransitive:
		return StrategyTransitive, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// Merge dispatches to the grouping selected by strategy.
func Merge(features []*models.Feature, strategy Strategy) []*models.Feature {
	if strategy == StrategyTransitive {
		return MergeTransitive(features)
	}
	return MergePolygonsWithOverlaps(features)
}

// MergePolygonsWithOverlaps walks the list once. The first unprocessed
// feature anchors a group; every later feature intersecting the anchor is
// moved directly behind the group and joins it. Groups of more than one
// feature are replaced by the union of their geometries with an empty
// attribute table, single features pass through unchanged.
//
// The caller's slice is not reordered.
func MergePolygonsWithOverlaps(features []*models.Feature) []*models.Feature {
	polygons := make([]*models.Feature, len(features))
	copy(polygons, features)

	index := rtree.NewIndex(polygons)
	// positions in the index refer to the original order; track where each
	// original feature currently sits after swaps
	where := make([]int, len(polygons))
	origin := make([]int, len(polygons))
	for i := range polygons {
		where[i] = i
		origin[i] = i
	}

	merged := make([]*models.Feature, 0, len(polygons))

	i := 0
	for i < len(polygons) {
		anchor := polygons[i]
		group := []*models.Feature{anchor}
		boundary := i

		near := make(map[int]bool)
		for _, pos := range index.Candidates(anchor.Bounds()) {
			near[where[pos]] = true
		}

		for j := i + 1; j < len(polygons); j++ {
			if !near[j] || !anchor.Geometry.Intersects(polygons[j].Geometry) {
				continue
			}

			boundary++
			if j != boundary {
				polygons[j], polygons[boundary] = polygons[boundary], polygons[j]
				origin[j], origin[boundary] = origin[boundary], origin[j]
				where[origin[j]] = j
				where[origin[boundary]] = boundary
				near[j], near[boundary] = near[boundary], near[j]
			}
			group = append(group, polygons[boundary])
		}

		merged = append(merged, unionGroup(group))
		i = boundary + 1
	}

	return merged
}

// MergeTransitive groups the connected components of the intersects graph
// with a disjoint-set forest. Groups are emitted in order of their first
// member.
func MergeTransitive(features []*models.Feature) []*models.Feature {
	sets := newDisjointSet(len(features))
	index := rtree.NewIndex(features)

	for i, f := range features {
		for _, j := range index.Candidates(f.Bounds()) {
			if j <= i || sets.find(i) == sets.find(j) {
				continue
			}
			if f.Geometry.Intersects(features[j].Geometry) {
				sets.union(i, j)
			}
		}
	}

	groups := make(map[int][]*models.Feature)
	var roots []int
	for i, f := range features {
		root := sets.find(i)
		if _, seen := groups[root]; !seen {
			roots = append(roots, root)
		}
		groups[root] = append(groups[root], f)
	}

	merged := make([]*models.Feature, 0, len(roots))
	for _, root := range roots {
		merged = append(merged, unionGroup(groups[root]))
	}
	return merged
}

func unionGroup(group []*models.Feature) *models.Feature {
	if len(group) == 1 {
		return group[0]
	}

	geoms := make([]*geos.Geom, len(group))
	for k, f := range group {
		geoms[k] = f.Geometry
	}
	return models.NewFeature(geo.UnionAll(geoms))
}
