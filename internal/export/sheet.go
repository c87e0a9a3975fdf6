package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/terraviva/soilgrid/internal/grid"
)

var sheetHeader = []string{"id", "grid_size_ha", "latitude", "longitude"}

// CSV renders the sample points as a comma-separated sheet with a header
// row, one sampling location per line.
func CSV(points []grid.SamplePoint) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(sheetHeader); err != nil {
		return nil, eris.Wrap(err, "export: write csv header")
	}
	for _, p := range points {
		row := []string{
			strconv.Itoa(p.ID),
			strconv.FormatFloat(p.GridSizeHa, 'f', 2, 64),
			strconv.FormatFloat(p.Latitude, 'f', 8, 64),
			strconv.FormatFloat(p.Longitude, 'f', 8, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, eris.Wrapf(err, "export: write csv row %d", p.ID)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "export: flush csv")
	}
	return buf.Bytes(), nil
}

// XLSX renders the sample points as a single-sheet workbook for field teams
// that plan collection routes in a spreadsheet.
func XLSX(points []grid.SamplePoint) ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("samples")
	if err != nil {
		return nil, eris.Wrap(err, "export: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, h := range sheetHeader {
		header.AddCell().SetString(h)
	}
	for _, p := range points {
		row := sheet.AddRow()
		row.AddCell().SetInt(p.ID)
		row.AddCell().SetFloat(p.GridSizeHa)
		row.AddCell().SetFloat(p.Latitude)
		row.AddCell().SetFloat(p.Longitude)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write xlsx")
	}
	return buf.Bytes(), nil
}
