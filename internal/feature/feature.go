// Package feature holds the in-memory vector feature model shared by the
// binary shapefile codec and the plain-text exporters.
package feature

import (
	"github.com/terraviva/soilgrid/internal/geodesy"
	"github.com/terraviva/soilgrid/internal/grid"
)

// Kind identifies a feature's geometry type.
type Kind int

const (
	KindPoint   Kind = 1
	KindPolygon Kind = 5
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Geometry is a tagged union over point and polygon shapes. For points X/Y
// hold (lng, lat); for polygons Ring holds the closed outline.
type Geometry struct {
	Kind Kind
	X, Y float64
	Ring geodesy.Ring
}

// Feature pairs a geometry with its attribute values. Attribute values are
// float64 or string; features are built once and never mutated.
type Feature struct {
	Geom  Geometry
	Attrs map[string]any
}

// Field describes one fixed-width numeric attribute column.
type Field struct {
	Name     string
	Length   int
	Decimals int
}

// Attribute column names. The schema per geometry kind is closed: the binary
// encoder's field-width assumptions depend on exactly these columns existing.
const (
	AttrID        = "ID"
	AttrGridSize  = "GRIDSIZE"
	AttrLatitude  = "LATITUDE"
	AttrLongitude = "LONGITUDE"
)

// PointFields returns the attribute schema for sample-point features. The
// four columns occupy four disjoint byte ranges in the encoded record.
func PointFields() []Field {
	return []Field{
		{Name: AttrID, Length: 10, Decimals: 0},
		{Name: AttrGridSize, Length: 12, Decimals: 2},
		{Name: AttrLatitude, Length: 15, Decimals: 8},
		{Name: AttrLongitude, Length: 15, Decimals: 8},
	}
}

// PolygonFields returns the attribute schema for grid-cell features.
func PolygonFields() []Field {
	return []Field{
		{Name: AttrID, Length: 10, Decimals: 0},
		{Name: AttrGridSize, Length: 12, Decimals: 2},
	}
}

// FieldsFor returns the attribute schema for the given geometry kind, or nil
// for unsupported kinds.
func FieldsFor(kind Kind) []Field {
	switch kind {
	case KindPoint:
		return PointFields()
	case KindPolygon:
		return PolygonFields()
	default:
		return nil
	}
}

// NewPoint builds a point feature at (lng, lat).
func NewPoint(lng, lat float64, attrs map[string]any) Feature {
	return Feature{
		Geom:  Geometry{Kind: KindPoint, X: lng, Y: lat},
		Attrs: attrs,
	}
}

// NewPolygon builds a polygon feature from a closed ring.
func NewPolygon(ring geodesy.Ring, attrs map[string]any) Feature {
	return Feature{
		Geom:  Geometry{Kind: KindPolygon, Ring: ring},
		Attrs: attrs,
	}
}

// PointsFromGrid wraps a grid result's sample points as point features with
// the four-column point schema.
func PointsFromGrid(res *grid.Result) []Feature {
	out := make([]Feature, 0, len(res.Points))
	for _, p := range res.Points {
		out = append(out, NewPoint(p.Longitude, p.Latitude, map[string]any{
			AttrID:        float64(p.ID),
			AttrGridSize:  p.GridSizeHa,
			AttrLatitude:  p.Latitude,
			AttrLongitude: p.Longitude,
		}))
	}
	return out
}

// CellsFromGrid wraps a grid result's retained cells as polygon features.
func CellsFromGrid(res *grid.Result) []Feature {
	out := make([]Feature, 0, len(res.Cells))
	for _, c := range res.Cells {
		out = append(out, NewPolygon(c.Ring, map[string]any{
			AttrID:       float64(c.ID),
			AttrGridSize: c.TargetAreaHa,
		}))
	}
	return out
}
