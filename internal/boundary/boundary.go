// Package boundary loads field-boundary polygons from uploaded GeoJSON or
// shapefile inputs and derives the bounding geometry that grid generation
// consumes. Coordinates are taken as-is in WGS84 degrees.
package boundary

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/terraviva/soilgrid/internal/geodesy"
)

// ErrNoPolygon indicates the input parsed but contained no usable polygon.
var ErrNoPolygon = eris.New("boundary: no polygon found in input")

// Boundary is a parsed area of interest: the outer ring of the first polygon
// in the input, its derived bounding box, and an optional display name taken
// from the source attributes.
type Boundary struct {
	Name string       `json:"name,omitempty"`
	Ring geodesy.Ring `json:"ring"`
	BBox geodesy.BBox `json:"bbox"`
}

// Load parses a boundary from raw bytes, dispatching on the file extension:
// .shp opens a shapefile, anything else is treated as GeoJSON. For
// shapefiles the path must be a real file on disk (the sibling .dbf is read
// for attributes); GeoJSON inputs may come from any source.
func Load(path string, data []byte) (*Boundary, error) {
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		return LoadShapefile(path)
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON extracts the first polygon's outer ring from a GeoJSON
// feature collection, feature, or bare geometry.
func ParseGeoJSON(data []byte) (*Boundary, error) {
	g, name, err := firstPolygonGeometry(data)
	if err != nil {
		return nil, err
	}

	ring, err := outerRing(g)
	if err != nil {
		return nil, err
	}
	return fromRing(name, ring)
}

// firstPolygonGeometry walks the GeoJSON structure looking for the first
// Polygon or MultiPolygon geometry, returning it with the feature's name
// property when present.
func firstPolygonGeometry(data []byte) (geom.T, string, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, "", eris.Wrap(err, "boundary: decode GeoJSON")
	}

	switch fc.Type {
	case "FeatureCollection":
		for _, f := range fc.Features {
			g, err := decodeGeometry(f.Geometry)
			if err != nil {
				continue
			}
			if isPolygonal(g) {
				return g, propName(f.Properties), nil
			}
		}
		return nil, "", eris.Wrap(ErrNoPolygon, "feature collection")
	case "Feature":
		g, err := decodeGeometry(fc.Geometry)
		if err != nil {
			return nil, "", err
		}
		if !isPolygonal(g) {
			return nil, "", eris.Wrapf(ErrNoPolygon, "feature geometry is %T", g)
		}
		return g, fc.name(), nil
	default:
		g, err := decodeGeometry(data)
		if err != nil {
			return nil, "", err
		}
		if !isPolygonal(g) {
			return nil, "", eris.Wrapf(ErrNoPolygon, "geometry is %T", g)
		}
		return g, "", nil
	}
}

// featureCollection is the minimal GeoJSON envelope: enough to find the
// polygon geometries without committing to a full schema.
type featureCollection struct {
	Type       string            `json:"type"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties map[string]any    `json:"properties"`
	Features   []struct {
		Geometry   json.RawMessage `json:"geometry"`
		Properties map[string]any  `json:"properties"`
	} `json:"features"`
}

func (fc featureCollection) name() string { return propName(fc.Properties) }

func propName(props map[string]any) string {
	for _, key := range []string{"name", "Name", "NAME"} {
		if v, ok := props[key].(string); ok {
			return v
		}
	}
	return ""
}

func decodeGeometry(raw json.RawMessage) (geom.T, error) {
	if len(raw) == 0 {
		return nil, eris.Wrap(ErrNoPolygon, "missing geometry")
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "boundary: decode geometry")
	}
	return g, nil
}

func isPolygonal(g geom.T) bool {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return true
	default:
		return false
	}
}

// outerRing returns the exterior ring of the polygon (or of a multi-polygon's
// first member) as a geodesy ring.
func outerRing(g geom.T) (geodesy.Ring, error) {
	var poly *geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		poly = t
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil, eris.Wrap(ErrNoPolygon, "empty multi-polygon")
		}
		poly = t.Polygon(0)
	default:
		return nil, eris.Wrapf(ErrNoPolygon, "unsupported geometry %T", g)
	}
	if poly.NumLinearRings() == 0 {
		return nil, eris.Wrap(ErrNoPolygon, "polygon has no rings")
	}

	coords := poly.LinearRing(0).Coords()
	ring := make(geodesy.Ring, 0, len(coords))
	for _, c := range coords {
		ring = append(ring, geodesy.Coord{Lng: c.X(), Lat: c.Y()})
	}
	return ring, nil
}

// fromRing closes the ring if needed and derives the bounding box.
func fromRing(name string, ring geodesy.Ring) (*Boundary, error) {
	if len(ring) < 3 {
		return nil, eris.Wrapf(ErrNoPolygon, "ring has %d vertices", len(ring))
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	box, err := geodesy.RingBBox(ring)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("boundary loaded",
		zap.String("name", name),
		zap.Int("vertices", len(ring)),
		zap.Float64("area_ha", ring.AreaHectares()),
	)
	return &Boundary{Name: name, Ring: ring, BBox: box}, nil
}
