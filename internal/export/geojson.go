// Package export renders grid results into interchange formats: GeoJSON for
// map transport, CSV and XLSX sample sheets for agronomists, and the zipped
// shapefile triple for GIS download.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/terraviva/soilgrid/internal/feature"
)

// GeoJSON renders a feature slice as a GeoJSON FeatureCollection. Attribute
// maps become feature properties unchanged.
func GeoJSON(features []feature.Feature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}

	for i, f := range features {
		g, err := toGeom(f.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "export: feature %d", i+1)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   g,
			Properties: f.Attrs,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal feature collection")
	}
	return data, nil
}

func toGeom(g feature.Geometry) (geom.T, error) {
	switch g.Kind {
	case feature.KindPoint:
		return geom.NewPointFlat(geom.XY, []float64{g.X, g.Y}), nil
	case feature.KindPolygon:
		flat := make([]float64, 0, 2*len(g.Ring))
		for _, c := range g.Ring {
			flat = append(flat, c.Lng, c.Lat)
		}
		return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil
	default:
		return nil, eris.Errorf("export: unsupported geometry kind %d", g.Kind)
	}
}
