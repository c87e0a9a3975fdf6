// Package shapefile encodes vector features into the three-file binary
// shapefile layout: geometry stream (.shp), spatial index (.shx), and
// attribute table (.dbf). The byte layout reproduces what downstream GIS
// readers expect; only point and single-ring polygon shapes are emitted.
package shapefile

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"

	"github.com/terraviva/soilgrid/internal/feature"
	"github.com/terraviva/soilgrid/internal/geodesy"
)

// Typed encode failures. Classify with eris.Is.
var (
	ErrMixedGeometry         = eris.New("shapefile: mixed or empty geometry input")
	ErrUnsupportedGeometry   = eris.New("shapefile: unsupported geometry kind")
	ErrInvalidAttributeValue = eris.New("shapefile: invalid attribute value")
)

const (
	fileCode   = 9994
	version    = 1000
	headerLen  = 100
	shapePoint = 1
	shapePoly  = 5
)

// Dataset holds the three encoded streams. Buffers are complete files; a
// failed encode returns no dataset at all.
type Dataset struct {
	SHP []byte
	SHX []byte
	DBF []byte
}

// Encode serializes a uniform, non-empty feature sequence of the given
// geometry kind into a shapefile triple. Every feature must match kind and
// carry finite numeric values for each column of the kind's attribute
// schema; any violation fails the whole encode with no partial output.
func Encode(features []feature.Feature, kind feature.Kind) (*Dataset, error) {
	if kind != feature.KindPoint && kind != feature.KindPolygon {
		return nil, eris.Wrapf(ErrUnsupportedGeometry, "kind %d", kind)
	}
	if len(features) == 0 {
		return nil, eris.Wrap(ErrMixedGeometry, "empty feature set")
	}
	for i, f := range features {
		switch f.Geom.Kind {
		case feature.KindPoint, feature.KindPolygon:
		default:
			return nil, eris.Wrapf(ErrUnsupportedGeometry, "feature %d kind %d", i+1, f.Geom.Kind)
		}
		if f.Geom.Kind != kind {
			return nil, eris.Wrapf(ErrMixedGeometry, "feature %d is %s, want %s", i+1, f.Geom.Kind, kind)
		}
	}

	box := datasetBBox(features)

	shpBuf, offsets, lengths, err := encodeGeometry(features, kind, box)
	if err != nil {
		return nil, err
	}
	shxBuf := encodeIndex(kind, box, offsets, lengths)
	dbfBuf, err := encodeAttributes(features, kind)
	if err != nil {
		return nil, err
	}

	return &Dataset{SHP: shpBuf, SHX: shxBuf, DBF: dbfBuf}, nil
}

// bbox is a dataset or record extent in minX,minY,maxX,maxY order.
type bbox struct {
	minX, minY, maxX, maxY float64
}

func (b *bbox) grow(x, y float64) {
	b.minX = math.Min(b.minX, x)
	b.minY = math.Min(b.minY, y)
	b.maxX = math.Max(b.maxX, x)
	b.maxY = math.Max(b.maxY, y)
}

func emptyBBox() bbox {
	return bbox{
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
}

func datasetBBox(features []feature.Feature) bbox {
	b := emptyBBox()
	for _, f := range features {
		if f.Geom.Kind == feature.KindPoint {
			b.grow(f.Geom.X, f.Geom.Y)
			continue
		}
		for _, c := range f.Geom.Ring {
			b.grow(c.Lng, c.Lat)
		}
	}
	return b
}

func ringBBox(ring geodesy.Ring) bbox {
	b := emptyBBox()
	for _, c := range ring {
		b.grow(c.Lng, c.Lat)
	}
	return b
}

// writeHeader emits the 100-byte file header shared by the .shp and .shx
// streams: big-endian magic and total length (in 16-bit words), little-endian
// version and shape type, then the little-endian double extent with zeroed
// Z and M ranges.
func writeHeader(buf *bytes.Buffer, fileLenBytes int, kind feature.Kind, box bbox) {
	var h [headerLen]byte
	binary.BigEndian.PutUint32(h[0:4], fileCode)
	// Bytes 4..23 are five unused big-endian int32 fields, left zero.
	binary.BigEndian.PutUint32(h[24:28], uint32(fileLenBytes/2))
	binary.LittleEndian.PutUint32(h[28:32], version)
	binary.LittleEndian.PutUint32(h[32:36], shapeCode(kind))
	binary.LittleEndian.PutUint64(h[36:44], math.Float64bits(box.minX))
	binary.LittleEndian.PutUint64(h[44:52], math.Float64bits(box.minY))
	binary.LittleEndian.PutUint64(h[52:60], math.Float64bits(box.maxX))
	binary.LittleEndian.PutUint64(h[60:68], math.Float64bits(box.maxY))
	// Bytes 68..99: Z and M ranges, zero for 2D data.
	buf.Write(h[:])
}

func shapeCode(kind feature.Kind) uint32 {
	if kind == feature.KindPoint {
		return shapePoint
	}
	return shapePoly
}

// encodeGeometry builds the .shp stream and returns the per-record offsets
// and content lengths (both in 16-bit words) needed by the index stream.
func encodeGeometry(features []feature.Feature, kind feature.Kind, box bbox) ([]byte, []int, []int, error) {
	var records bytes.Buffer
	offsets := make([]int, 0, len(features))
	lengths := make([]int, 0, len(features))
	offsetWords := headerLen / 2

	for i, f := range features {
		var content bytes.Buffer
		writeInt32LE(&content, int(shapeCode(kind)))

		if kind == feature.KindPoint {
			if !isFinite(f.Geom.X) || !isFinite(f.Geom.Y) {
				return nil, nil, nil, eris.Wrapf(ErrInvalidAttributeValue,
					"feature %d has non-finite coordinates", i+1)
			}
			writeDouble(&content, f.Geom.X)
			writeDouble(&content, f.Geom.Y)
		} else {
			if err := writePolygonContent(&content, f.Geom.Ring, i+1); err != nil {
				return nil, nil, nil, err
			}
		}

		contentWords := content.Len() / 2
		var prefix [8]byte
		binary.BigEndian.PutUint32(prefix[0:4], uint32(i+1))
		binary.BigEndian.PutUint32(prefix[4:8], uint32(contentWords))
		records.Write(prefix[:])
		records.Write(content.Bytes())

		offsets = append(offsets, offsetWords)
		lengths = append(lengths, contentWords)
		offsetWords += 4 + contentWords
	}

	var out bytes.Buffer
	writeHeader(&out, headerLen+records.Len(), kind, box)
	out.Write(records.Bytes())
	return out.Bytes(), offsets, lengths, nil
}

// writePolygonContent emits the record bbox, numParts=1, numPoints, the
// single part offset, and the ring coordinates.
func writePolygonContent(content *bytes.Buffer, ring geodesy.Ring, recNum int) error {
	if len(ring) == 0 {
		return eris.Wrapf(ErrUnsupportedGeometry, "feature %d has an empty ring", recNum)
	}
	for _, c := range ring {
		if !isFinite(c.Lng) || !isFinite(c.Lat) {
			return eris.Wrapf(ErrInvalidAttributeValue,
				"feature %d has non-finite ring coordinates", recNum)
		}
	}

	rb := ringBBox(ring)
	writeDouble(content, rb.minX)
	writeDouble(content, rb.minY)
	writeDouble(content, rb.maxX)
	writeDouble(content, rb.maxY)
	writeInt32LE(content, 1)         // numParts
	writeInt32LE(content, len(ring)) // numPoints
	writeInt32LE(content, 0)         // sole part starts at point 0
	for _, c := range ring {
		writeDouble(content, c.Lng)
		writeDouble(content, c.Lat)
	}
	return nil
}

// encodeIndex builds the .shx stream: a header identical in shape to the
// geometry header, then one (offsetWords, contentWords) big-endian pair per
// record.
func encodeIndex(kind feature.Kind, box bbox, offsets, lengths []int) []byte {
	var out bytes.Buffer
	writeHeader(&out, headerLen+8*len(offsets), kind, box)

	for i := range offsets {
		var entry [8]byte
		binary.BigEndian.PutUint32(entry[0:4], uint32(offsets[i]))
		binary.BigEndian.PutUint32(entry[4:8], uint32(lengths[i]))
		out.Write(entry[:])
	}
	return out.Bytes()
}

func writeDouble(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeInt32LE(buf *bytes.Buffer, v int) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
