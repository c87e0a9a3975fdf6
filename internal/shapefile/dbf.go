package shapefile

import (
	"bytes"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/terraviva/soilgrid/internal/feature"
)

const (
	dbfVersion    = 0x03
	dbfTerminator = 0x0D
	dbfEOF        = 0x1A
	dbfFieldDesc  = 32
	dbfHeaderBase = 32
)

// encodeAttributes builds the .dbf stream: a 32-byte header, one 32-byte
// descriptor per numeric column of the kind's schema, a terminator byte,
// then one fixed-width text record per feature and a trailing EOF marker.
// Each column occupies its own disjoint byte range in the record.
func encodeAttributes(features []feature.Feature, kind feature.Kind) ([]byte, error) {
	fields := feature.FieldsFor(kind)
	if len(fields) == 0 {
		return nil, eris.Wrapf(ErrUnsupportedGeometry, "no attribute schema for kind %d", kind)
	}

	recordLen := 1 // deletion flag
	for _, f := range fields {
		recordLen += f.Length
	}
	headerLen := dbfHeaderBase + dbfFieldDesc*len(fields) + 1

	var out bytes.Buffer
	writeDBFHeader(&out, len(features), headerLen, recordLen)
	for _, f := range fields {
		writeFieldDescriptor(&out, f)
	}
	out.WriteByte(dbfTerminator)

	for i, f := range features {
		out.WriteByte(' ') // record not deleted
		for _, col := range fields {
			cell, err := formatNumericCell(f.Attrs, col, i+1)
			if err != nil {
				return nil, err
			}
			out.WriteString(cell)
		}
	}
	out.WriteByte(dbfEOF)

	return out.Bytes(), nil
}

// writeDBFHeader emits the fixed 32-byte table header: version, last-modified
// date, little-endian record count, header length, and record length.
func writeDBFHeader(out *bytes.Buffer, records, headerLen, recordLen int) {
	now := time.Now()

	var h [dbfHeaderBase]byte
	h[0] = dbfVersion
	h[1] = byte(now.Year() - 1900)
	h[2] = byte(now.Month())
	h[3] = byte(now.Day())
	h[4] = byte(records)
	h[5] = byte(records >> 8)
	h[6] = byte(records >> 16)
	h[7] = byte(records >> 24)
	h[8] = byte(headerLen)
	h[9] = byte(headerLen >> 8)
	h[10] = byte(recordLen)
	h[11] = byte(recordLen >> 8)
	// Bytes 12..31: reserved, zero.
	out.Write(h[:])
}

// writeFieldDescriptor emits one 32-byte column descriptor: a null-padded
// 11-byte name, the 'N' numeric type code, then length and decimal count.
func writeFieldDescriptor(out *bytes.Buffer, f feature.Field) {
	var d [dbfFieldDesc]byte
	copy(d[0:11], f.Name)
	d[11] = 'N'
	// Bytes 12..15: field data address, unused.
	d[16] = byte(f.Length)
	d[17] = byte(f.Decimals)
	// Bytes 18..31: reserved, zero.
	out.Write(d[:])
}

// formatNumericCell renders one attribute value as a right-aligned,
// space-padded numeric string of exactly the column width.
func formatNumericCell(attrs map[string]any, col feature.Field, recNum int) (string, error) {
	raw, ok := attrs[col.Name]
	if !ok {
		return "", eris.Wrapf(ErrInvalidAttributeValue,
			"feature %d is missing attribute %s", recNum, col.Name)
	}
	v, ok := raw.(float64)
	if !ok {
		return "", eris.Wrapf(ErrInvalidAttributeValue,
			"feature %d attribute %s is %T, want numeric", recNum, col.Name, raw)
	}
	if !isFinite(v) {
		return "", eris.Wrapf(ErrInvalidAttributeValue,
			"feature %d attribute %s is non-finite", recNum, col.Name)
	}

	text := strconv.FormatFloat(v, 'f', col.Decimals, 64)
	if len(text) > col.Length {
		return "", eris.Wrapf(ErrInvalidAttributeValue,
			"feature %d attribute %s value %s overflows width %d",
			recNum, col.Name, text, col.Length)
	}
	pad := col.Length - len(text)
	return spaces(pad) + text, nil
}

func spaces(n int) string {
	return string(bytes.Repeat([]byte{' '}, n))
}
