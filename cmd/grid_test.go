package main

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terraviva/soilgrid/internal/config"
	"github.com/terraviva/soilgrid/internal/geodesy"
	"github.com/terraviva/soilgrid/internal/grid"
	"github.com/terraviva/soilgrid/internal/store"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Grid.CellAreaHa = 2.5
	c.Grid.BaseName = "sampling_grid"
	return c
}

func TestParseBBox(t *testing.T) {
	box, err := parseBBox("-27.64,-53.48,-27.60,-53.44")
	require.NoError(t, err)
	assert.Equal(t, -27.64, box.MinLat)
	assert.Equal(t, -53.48, box.MinLng)
	assert.Equal(t, -27.60, box.MaxLat)
	assert.Equal(t, -53.44, box.MaxLng)
}

func TestParseBBoxSpaces(t *testing.T) {
	box, err := parseBBox(" -27.64, -53.48, -27.60, -53.44 ")
	require.NoError(t, err)
	assert.Equal(t, -27.64, box.MinLat)
}

func TestParseBBoxErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"too few components", "-27.64,-53.48,-27.60"},
		{"too many components", "1,2,3,4,5"},
		{"not a number", "-27.64,north,-27.60,-53.44"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseBBox(tt.spec)
			assert.Error(t, err)
		})
	}
}

func testResult(t *testing.T) *grid.Result {
	t.Helper()
	res, err := grid.Generate(grid.Params{
		BBox:       geodesy.NewBBox(-27.64, -53.48, -27.60, -53.44),
		CellAreaHa: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Cells)
	return res
}

func TestRenderGridShapefile(t *testing.T) {
	cfg = testConfig()
	res := testResult(t)

	payload, outPath, err := renderGrid(res, "shapefile", "points", "")
	require.NoError(t, err)
	assert.Equal(t, "sampling_grid.zip", outPath)

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 4)
}

func TestRenderGridFormats(t *testing.T) {
	cfg = testConfig()
	res := testResult(t)

	tests := []struct {
		format  string
		wantOut string
	}{
		{"geojson", "sampling_grid.geojson"},
		{"csv", "sampling_grid.csv"},
		{"xlsx", "sampling_grid.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			payload, outPath, err := renderGrid(res, tt.format, "points", "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, outPath)
			assert.NotEmpty(t, payload)
		})
	}
}

func TestRenderGridExplicitOut(t *testing.T) {
	cfg = testConfig()
	res := testResult(t)

	_, outPath, err := renderGrid(res, "csv", "points", "field7.csv")
	require.NoError(t, err)
	assert.Equal(t, "field7.csv", outPath)
}

func TestRenderGridCellGeometry(t *testing.T) {
	cfg = testConfig()
	res := testResult(t)

	payload, _, err := renderGrid(res, "geojson", "cells", "")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "Polygon")
}

func TestRenderGridBadInputs(t *testing.T) {
	cfg = testConfig()
	res := testResult(t)

	_, _, err := renderGrid(res, "kml", "points", "")
	assert.ErrorContains(t, err, "unknown format")

	_, _, err = renderGrid(res, "csv", "lines", "")
	assert.ErrorContains(t, err, "unknown geometry")
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []store.Run{
		{
			ID: "abc123", Kind: store.RunKindGrid, Status: store.RunStatusComplete,
			CellCount: 42, PointCount: 42,
			CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "abc123")
	assert.Contains(t, out, "grid")
	assert.Contains(t, out, "2026-03-01 09:30:00")
}
