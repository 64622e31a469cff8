// Package geo adapts the GEOS engine (through go-geos) to the predicates and
// set operations the building-limit splitter needs. Nothing here implements
// geometry itself.
package geo

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"
)

// IsVoid reports whether g carries no area: nil, empty or zero-area.
func IsVoid(g *geos.Geom) bool {
	return g == nil || g.IsEmpty() || g.Area() == 0
}

// SharesInterior reports whether the interiors of a and b intersect, i.e.
// they meet in more than a shared boundary. Unlike Overlaps this holds when
// one geometry contains the other.
func SharesInterior(a, b *geos.Geom) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Intersects(b) && !a.Touches(b)
}

// Polygonal returns the polygonal part of g. Intersections of polygons may
// come back as collections mixing polygons with lines or points where the
// inputs only touch; those lower-dimensional parts are dropped. It returns
// nil when nothing with area is left.
func Polygonal(g *geos.Geom) *geos.Geom {
	if IsVoid(g) {
		return nil
	}

	switch g.TypeID() {
	case geos.TypeIDPolygon, geos.TypeIDMultiPolygon:
		return g
	case geos.TypeIDGeometryCollection:
	default:
		return nil
	}

	parts := appendPolygons(nil, g)
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	default:
		// union rather than a bare MultiPolygon: parts may share edges
		return geos.NewCollection(geos.TypeIDGeometryCollection, parts).UnaryUnion()
	}
}

func appendPolygons(parts []*geos.Geom, g *geos.Geom) []*geos.Geom {
	switch g.TypeID() {
	case geos.TypeIDPolygon:
		if !IsVoid(g) {
			parts = append(parts, g.Clone())
		}
	case geos.TypeIDMultiPolygon, geos.TypeIDGeometryCollection:
		for i := 0; i < g.NumGeometries(); i++ {
			parts = appendPolygons(parts, g.Geometry(i))
		}
	}
	return parts
}

// UnionAll computes the N-ary union of geoms. The inputs are cloned, so the
// caller keeps ownership of them.
func UnionAll(geoms []*geos.Geom) *geos.Geom {
	clones := make([]*geos.Geom, 0, len(geoms))
	for _, g := range geoms {
		if g == nil {
			continue
		}
		clones = append(clones, g.Clone())
	}
	if len(clones) == 0 {
		return nil
	}
	return geos.NewCollection(geos.TypeIDGeometryCollection, clones).UnaryUnion()
}

// Guard runs fn and turns a panic raised by the engine into an error.
// go-geos panics when GEOS reports an exception.
func Guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicCause(r)
		}
	}()
	fn()
	return nil
}

func panicCause(r any) error {
	switch v := r.(type) {
	case error:
		return v
	case string:
		return errors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
