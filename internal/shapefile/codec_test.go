package shapefile

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraviva/soilgrid/internal/feature"
	"github.com/terraviva/soilgrid/internal/geodesy"
	"github.com/terraviva/soilgrid/internal/grid"
)

func pointFeature(id int, gridSize, lat, lng float64) feature.Feature {
	return feature.NewPoint(lng, lat, map[string]any{
		feature.AttrID:        float64(id),
		feature.AttrGridSize:  gridSize,
		feature.AttrLatitude:  lat,
		feature.AttrLongitude: lng,
	})
}

func polygonFeature(id int, gridSize float64, ring geodesy.Ring) feature.Feature {
	return feature.NewPolygon(ring, map[string]any{
		feature.AttrID:       float64(id),
		feature.AttrGridSize: gridSize,
	})
}

func le64(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

func TestEncodeSinglePointLayout(t *testing.T) {
	ds, err := Encode([]feature.Feature{pointFeature(1, 2, -27.6321, -53.4701)}, feature.KindPoint)
	require.NoError(t, err)

	// Geometry stream: 100-byte header + 8-byte record prefix + 20-byte
	// point content.
	require.Len(t, ds.SHP, 128)
	assert.Equal(t, uint32(9994), binary.BigEndian.Uint32(ds.SHP[0:4]))
	assert.Equal(t, uint32(64), binary.BigEndian.Uint32(ds.SHP[24:28]), "file length in words")
	assert.Equal(t, uint32(1000), binary.LittleEndian.Uint32(ds.SHP[28:32]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(ds.SHP[32:36]), "point shape code")

	// Header extent collapses to the single coordinate; Z/M ranges zero.
	assert.InDelta(t, -53.4701, le64(ds.SHP[36:44]), 1e-12)
	assert.InDelta(t, -27.6321, le64(ds.SHP[44:52]), 1e-12)
	assert.InDelta(t, -53.4701, le64(ds.SHP[52:60]), 1e-12)
	assert.InDelta(t, -27.6321, le64(ds.SHP[60:68]), 1e-12)
	for _, b := range ds.SHP[68:100] {
		assert.Zero(t, b)
	}

	// Record prefix is big-endian (recordNumber, contentWords).
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(ds.SHP[100:104]))
	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(ds.SHP[104:108]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(ds.SHP[108:112]))
	assert.InDelta(t, -53.4701, le64(ds.SHP[112:120]), 1e-9)
	assert.InDelta(t, -27.6321, le64(ds.SHP[120:128]), 1e-9)

	// Index stream: header + one entry pointing at word 50.
	require.Len(t, ds.SHX, 108)
	assert.Equal(t, uint32(9994), binary.BigEndian.Uint32(ds.SHX[0:4]))
	assert.Equal(t, uint32(54), binary.BigEndian.Uint32(ds.SHX[24:28]))
	assert.Equal(t, uint32(50), binary.BigEndian.Uint32(ds.SHX[100:104]))
	assert.Equal(t, uint32(10), binary.BigEndian.Uint32(ds.SHX[104:108]))
}

func TestEncodeDBFLayout(t *testing.T) {
	ds, err := Encode([]feature.Feature{
		pointFeature(1, 2, -27.6321, -53.4701),
		pointFeature(2, 2, -27.64, -53.48),
	}, feature.KindPoint)
	require.NoError(t, err)

	fields := feature.PointFields()
	recordLen := 1
	for _, f := range fields {
		recordLen += f.Length
	}
	headerLen := 32 + 32*len(fields) + 1

	require.Len(t, ds.DBF, headerLen+2*recordLen+1)
	assert.Equal(t, byte(0x03), ds.DBF[0])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ds.DBF[4:8]))
	assert.Equal(t, uint16(headerLen), binary.LittleEndian.Uint16(ds.DBF[8:10]))
	assert.Equal(t, uint16(recordLen), binary.LittleEndian.Uint16(ds.DBF[10:12]))
	assert.Equal(t, byte(0x0D), ds.DBF[headerLen-1])
	assert.Equal(t, byte(0x1A), ds.DBF[len(ds.DBF)-1])

	// Field descriptors: name, 'N' type, width, decimals.
	for i, f := range fields {
		desc := ds.DBF[32+32*i : 32+32*(i+1)]
		assert.Equal(t, f.Name, strings.TrimRight(string(desc[0:11]), "\x00"))
		assert.Equal(t, byte('N'), desc[11])
		assert.Equal(t, byte(f.Length), desc[16])
		assert.Equal(t, byte(f.Decimals), desc[17])
	}

	// First record: deletion flag then four disjoint right-aligned cells.
	rec := string(ds.DBF[headerLen : headerLen+recordLen])
	assert.Equal(t, " ", rec[:1])
	off := 1
	wantCells := []string{"1", "2.00", "-27.63210000", "-53.47010000"}
	for i, f := range fields {
		cell := rec[off : off+f.Length]
		assert.Equal(t, wantCells[i], strings.TrimSpace(cell), "column %s", f.Name)
		off += f.Length
	}
}

// writeDataset materializes an encoded dataset as the sibling files go-shp
// expects next to the .shp.
func writeDataset(t *testing.T, ds *Dataset) string {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "mesh")
	require.NoError(t, os.WriteFile(base+".shp", ds.SHP, 0o644))
	require.NoError(t, os.WriteFile(base+".shx", ds.SHX, 0o644))
	require.NoError(t, os.WriteFile(base+".dbf", ds.DBF, 0o644))
	require.NoError(t, os.WriteFile(base+".prj", []byte(ProjectionWKT), 0o644))
	return base + ".shp"
}

func TestEncodePointRoundTrip(t *testing.T) {
	ds, err := Encode([]feature.Feature{pointFeature(1, 2, -27.6321, -53.4701)}, feature.KindPoint)
	require.NoError(t, err)

	reader, err := shp.Open(writeDataset(t, ds))
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	fieldNames := make([]string, 0, 4)
	for _, f := range reader.Fields() {
		fieldNames = append(fieldNames, strings.TrimRight(f.String(), "\x00"))
	}
	assert.Equal(t, []string{"ID", "GRIDSIZE", "LATITUDE", "LONGITUDE"}, fieldNames)

	require.True(t, reader.Next())
	_, shape := reader.Shape()
	pt, ok := shape.(*shp.Point)
	require.True(t, ok, "expected point shape, got %T", shape)
	assert.InDelta(t, -53.4701, pt.X, 1e-9)
	assert.InDelta(t, -27.6321, pt.Y, 1e-9)

	id, err := strconv.Atoi(strings.TrimSpace(reader.Attribute(0)))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	lat, err := strconv.ParseFloat(strings.TrimSpace(reader.Attribute(2)), 64)
	require.NoError(t, err)
	assert.InDelta(t, -27.6321, lat, 1e-7)
	lng, err := strconv.ParseFloat(strings.TrimSpace(reader.Attribute(3)), 64)
	require.NoError(t, err)
	assert.InDelta(t, -53.4701, lng, 1e-7)

	assert.False(t, reader.Next())
}

func TestEncodeGridPolygonsRoundTrip(t *testing.T) {
	res, err := grid.Generate(grid.Params{
		BBox:       geodesy.NewBBox(-27.7, -53.5, -27.68, -53.48),
		CellAreaHa: 25,
	})
	require.NoError(t, err)
	cells := feature.CellsFromGrid(res)
	require.NotEmpty(t, cells)

	ds, err := Encode(cells, feature.KindPolygon)
	require.NoError(t, err)

	reader, err := shp.Open(writeDataset(t, ds))
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	n := 0
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		require.True(t, ok, "expected polygon shape, got %T", shape)
		assert.Equal(t, int32(1), poly.NumParts)
		assert.Equal(t, int32(5), poly.NumPoints)
		require.Len(t, poly.Points, 5)

		want := cells[n].Geom.Ring
		for i, p := range poly.Points {
			assert.InDelta(t, want[i].Lng, p.X, 1e-9)
			assert.InDelta(t, want[i].Lat, p.Y, 1e-9)
		}
		n++
	}
	assert.Equal(t, len(cells), n)
}

func TestEncodeIndexOffsetsCumulative(t *testing.T) {
	ring := geodesy.Ring{
		{Lng: 0, Lat: 0}, {Lng: 1, Lat: 0}, {Lng: 1, Lat: 1},
		{Lng: 0, Lat: 1}, {Lng: 0, Lat: 0},
	}
	ds, err := Encode([]feature.Feature{
		polygonFeature(1, 10, ring),
		polygonFeature(2, 10, ring),
		polygonFeature(3, 10, ring),
	}, feature.KindPolygon)
	require.NoError(t, err)

	// Each polygon record content: 4 + 32 + 4 + 4 + 4 + 5*16 = 128 bytes.
	contentWords := 128 / 2
	require.Len(t, ds.SHX, 100+8*3)
	for i := 0; i < 3; i++ {
		entry := ds.SHX[100+8*i:]
		wantOffset := 50 + i*(4+contentWords)
		assert.Equal(t, uint32(wantOffset), binary.BigEndian.Uint32(entry[0:4]))
		assert.Equal(t, uint32(contentWords), binary.BigEndian.Uint32(entry[4:8]))
	}

	// SHP record prefixes agree with the index entries.
	for i := 0; i < 3; i++ {
		prefix := ds.SHP[100+i*(8+128):]
		assert.Equal(t, uint32(i+1), binary.BigEndian.Uint32(prefix[0:4]))
		assert.Equal(t, uint32(contentWords), binary.BigEndian.Uint32(prefix[4:8]))
	}
}

func TestEncodeFailures(t *testing.T) {
	ring := geodesy.Ring{
		{Lng: 0, Lat: 0}, {Lng: 1, Lat: 0}, {Lng: 1, Lat: 1}, {Lng: 0, Lat: 0},
	}
	point := pointFeature(1, 2, -27.6321, -53.4701)
	polygon := polygonFeature(1, 10, ring)

	tests := []struct {
		name     string
		features []feature.Feature
		kind     feature.Kind
		sentinel error
	}{
		{"empty input", nil, feature.KindPoint, ErrMixedGeometry},
		{"mixed kinds", []feature.Feature{point, polygon}, feature.KindPoint, ErrMixedGeometry},
		{"kind mismatch", []feature.Feature{polygon}, feature.KindPoint, ErrMixedGeometry},
		{"unsupported dataset kind", []feature.Feature{point}, feature.Kind(13), ErrUnsupportedGeometry},
		{
			"unsupported feature kind",
			[]feature.Feature{{Geom: feature.Geometry{Kind: feature.Kind(7)}}},
			feature.KindPoint,
			ErrUnsupportedGeometry,
		},
		{
			"non-finite coordinate",
			[]feature.Feature{pointFeature(1, 2, math.NaN(), -53.4701)},
			feature.KindPoint,
			ErrInvalidAttributeValue,
		},
		{
			"non-finite attribute",
			[]feature.Feature{feature.NewPoint(-53.4701, -27.6321, map[string]any{
				feature.AttrID:        1.0,
				feature.AttrGridSize:  math.Inf(1),
				feature.AttrLatitude:  -27.6321,
				feature.AttrLongitude: -53.4701,
			})},
			feature.KindPoint,
			ErrInvalidAttributeValue,
		},
		{
			"missing attribute",
			[]feature.Feature{feature.NewPoint(-53.4701, -27.6321, map[string]any{
				feature.AttrID: 1.0,
			})},
			feature.KindPoint,
			ErrInvalidAttributeValue,
		},
		{
			"string in numeric column",
			[]feature.Feature{feature.NewPoint(-53.4701, -27.6321, map[string]any{
				feature.AttrID:        "one",
				feature.AttrGridSize:  2.0,
				feature.AttrLatitude:  -27.6321,
				feature.AttrLongitude: -53.4701,
			})},
			feature.KindPoint,
			ErrInvalidAttributeValue,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := Encode(tc.features, tc.kind)
			require.Error(t, err)
			assert.True(t, eris.Is(err, tc.sentinel), "got %v", err)
			assert.Nil(t, ds, "no partial output on failure")
		})
	}
}

func TestProjectionWKT(t *testing.T) {
	assert.Contains(t, ProjectionWKT, "GCS_WGS_1984")
	assert.Contains(t, ProjectionWKT, "6378137.0")
}
