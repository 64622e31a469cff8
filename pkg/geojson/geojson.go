// Package geojson reads building limits and height plateaus from GeoJSON
// feature collections and writes fragments back out.
package geojson

import (
	"errors"
	"fmt"
	"os"

	"github.com/kass/building-limits/pkg/logger"
	"github.com/kass/building-limits/pkg/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
)

// ErrEmptyFile is returned for a file with no content.
var ErrEmptyFile = errors.New("contents of file are empty")

// ReadFile decodes the feature collection stored at path.
func ReadFile(path string) ([]*models.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	features, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return features, nil
}

// Decode parses a feature collection and keeps its Polygon and MultiPolygon
// features, in order. Features of any other geometry type are dropped.
func Decode(data []byte) ([]*models.Feature, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode feature collection: %w", err)
	}

	features := make([]*models.Feature, 0, len(fc.Features))
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			logger.L().Debug("geojson.skip_feature", "index", i, "type", geometryType(f.Geometry))
			continue
		}

		geom, err := toGEOS(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		props := make(map[string]any, len(f.Properties))
		for k, v := range f.Properties {
			props[k] = v
		}

		features = append(features, &models.Feature{
			ID:         featureID(f.ID),
			Geometry:   geom,
			Properties: props,
		})
	}

	return features, nil
}

// Encode builds a feature collection from features.
func Encode(features []*models.Feature) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, f := range features {
		g, err := fromGEOS(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		out := geojson.NewFeature(g)
		if f.ID != "" {
			out.ID = f.ID
		}
		for k, v := range f.Properties {
			out.Properties[k] = v
		}
		fc.Append(out)
	}

	return fc.MarshalJSON()
}

// WriteFile encodes features and writes them to path.
func WriteFile(path string, features []*models.Feature) error {
	data, err := Encode(features)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	geom, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry: %w", err)
	}
	return geom, nil
}

func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	if g == nil {
		return nil, errors.New("geometry is nil")
	}
	out, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("failed to decode geometry: %w", err)
	}
	return out, nil
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
