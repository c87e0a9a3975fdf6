package export

import (
	"archive/zip"
	"bytes"

	"github.com/rotisserie/eris"

	"github.com/terraviva/soilgrid/internal/shapefile"
)

// Archive packages an encoded shapefile triple plus the constant WGS84
// projection sidecar into a zip for download. baseName is the entry name
// without extension, e.g. "sampling_grid".
func Archive(ds *shapefile.Dataset, baseName string) ([]byte, error) {
	if baseName == "" {
		baseName = "sampling_grid"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entries := []struct {
		name string
		data []byte
	}{
		{baseName + ".shp", ds.SHP},
		{baseName + ".shx", ds.SHX},
		{baseName + ".dbf", ds.DBF},
		{baseName + ".prj", []byte(shapefile.ProjectionWKT)},
	}
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: create zip entry %s", e.name)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, eris.Wrapf(err, "export: write zip entry %s", e.name)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "export: close zip")
	}
	return buf.Bytes(), nil
}
