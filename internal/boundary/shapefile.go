package boundary

import (
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"

	"github.com/terraviva/soilgrid/internal/geodesy"
)

// LoadShapefile reads the first polygon record from a shapefile and returns
// its outer ring. Legacy attribute tables from Brazilian GIS exports are
// Latin-1 encoded, so string attributes are decoded through ISO 8859-1
// before use.
func LoadShapefile(path string) (*Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for i, f := range reader.Fields() {
		fieldName := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(fieldName, "name") || strings.EqualFold(fieldName, "nome") {
			nameIdx = i
			break
		}
	}

	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		ring := outerPart(poly)
		if len(ring) < 3 {
			continue
		}

		name := ""
		if nameIdx >= 0 {
			name = decodeLatin1(strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00")))
		}
		return fromRing(name, ring)
	}

	return nil, eris.Wrapf(ErrNoPolygon, "shapefile %s", path)
}

// outerPart extracts the first part of a shapefile polygon as a ring.
func outerPart(poly *shp.Polygon) geodesy.Ring {
	if poly.NumParts == 0 || len(poly.Points) == 0 {
		return nil
	}
	end := int32(len(poly.Points))
	if poly.NumParts > 1 {
		end = poly.Parts[1]
	}

	ring := make(geodesy.Ring, 0, end)
	for _, p := range poly.Points[:end] {
		ring = append(ring, geodesy.Coord{Lng: p.X, Lat: p.Y})
	}
	return ring
}

func decodeLatin1(s string) string {
	decoded, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return s
	}
	return decoded
}
