package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terraviva/soilgrid/internal/boundary"
	"github.com/terraviva/soilgrid/internal/export"
	"github.com/terraviva/soilgrid/internal/feature"
	"github.com/terraviva/soilgrid/internal/fetch"
	"github.com/terraviva/soilgrid/internal/geodesy"
	"github.com/terraviva/soilgrid/internal/grid"
	"github.com/terraviva/soilgrid/internal/shapefile"
	"github.com/terraviva/soilgrid/internal/store"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Generate a sampling grid",
	Long:  "Meshes a bounding box or field boundary into equal-area cells and writes the retained cells and their sample points in the chosen format.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("grid"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "grid"))

		boundarySrc, _ := cmd.Flags().GetString("boundary")
		bboxSpec, _ := cmd.Flags().GetString("bbox")
		cellArea, _ := cmd.Flags().GetFloat64("cell-area")
		format, _ := cmd.Flags().GetString("format")
		geometry, _ := cmd.Flags().GetString("geometry")
		out, _ := cmd.Flags().GetString("out")

		if boundarySrc == "" && bboxSpec == "" {
			return eris.New("specify --boundary and/or --bbox")
		}
		if cellArea == 0 {
			cellArea = cfg.Grid.CellAreaHa
		}

		p := grid.Params{CellAreaHa: cellArea}

		if boundarySrc != "" {
			b, err := loadBoundary(ctx, boundarySrc)
			if err != nil {
				return eris.Wrap(err, "grid: load boundary")
			}
			p.Boundary = b.Ring
			p.BBox = b.BBox
			log.Info("boundary loaded",
				zap.String("source", boundarySrc),
				zap.String("name", b.Name),
				zap.Float64("area_ha", b.Ring.AreaHectares()),
			)
		}
		if bboxSpec != "" {
			box, err := parseBBox(bboxSpec)
			if err != nil {
				return err
			}
			p.BBox = box
		}

		start := time.Now()
		res, err := grid.Generate(p)
		if err != nil {
			return eris.Wrap(err, "grid: generate")
		}
		log.Info("grid generated",
			zap.Float64("cell_area_ha", cellArea),
			zap.Int("cells", len(res.Cells)),
			zap.Duration("elapsed", time.Since(start)),
		)

		payload, outPath, err := renderGrid(res, format, geometry, out)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, payload, 0o644); err != nil {
			return eris.Wrap(err, "grid: write output")
		}
		fmt.Fprintf(os.Stderr, "Wrote %d cells to %s\n", len(res.Cells), outPath)

		recordGridRun(ctx, p, res)
		return nil
	},
}

// loadBoundary reads a boundary from a local file or a remote URL.
func loadBoundary(ctx context.Context, src string) (*boundary.Boundary, error) {
	if strings.Contains(src, "://") {
		f := fetch.New(fetch.Options{
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxBytes:  cfg.Fetch.MaxBytes,
		})
		data, err := f.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		return boundary.ParseGeoJSON(data)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, eris.Wrap(err, "read boundary file")
	}
	return boundary.Load(src, data)
}

// parseBBox parses "swLat,swLng,neLat,neLng".
func parseBBox(spec string) (geodesy.BBox, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return geodesy.BBox{}, eris.New("--bbox wants swLat,swLng,neLat,neLng")
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geodesy.BBox{}, eris.Wrapf(err, "parse --bbox component %d", i+1)
		}
		vals[i] = v
	}
	return geodesy.NewBBox(vals[0], vals[1], vals[2], vals[3]), nil
}

// renderGrid encodes the result in the requested format and resolves the
// output path, applying a format-appropriate default when --out is empty.
func renderGrid(res *grid.Result, format, geometry, out string) ([]byte, string, error) {
	kind := feature.KindPoint
	feats := feature.PointsFromGrid(res)
	if geometry == "cells" {
		kind = feature.KindPolygon
		feats = feature.CellsFromGrid(res)
	} else if geometry != "" && geometry != "points" {
		return nil, "", eris.Errorf("unknown geometry %q (points, cells)", geometry)
	}

	base := cfg.Grid.BaseName
	switch format {
	case "shapefile":
		ds, err := shapefile.Encode(feats, kind)
		if err != nil {
			return nil, "", err
		}
		payload, err := export.Archive(ds, base)
		if err != nil {
			return nil, "", err
		}
		return payload, defaultOut(out, base+".zip"), nil
	case "geojson":
		payload, err := export.GeoJSON(feats)
		if err != nil {
			return nil, "", err
		}
		return payload, defaultOut(out, base+".geojson"), nil
	case "csv":
		payload, err := export.CSV(res.Points)
		if err != nil {
			return nil, "", err
		}
		return payload, defaultOut(out, base+".csv"), nil
	case "xlsx":
		payload, err := export.XLSX(res.Points)
		if err != nil {
			return nil, "", err
		}
		return payload, defaultOut(out, base+".xlsx"), nil
	default:
		return nil, "", eris.Errorf("unknown format %q (shapefile, geojson, csv, xlsx)", format)
	}
}

func defaultOut(out, fallback string) string {
	if out != "" {
		return out
	}
	return fallback
}

// recordGridRun persists the run; failures are logged, not fatal, so a
// broken database never loses a generated grid.
func recordGridRun(ctx context.Context, p grid.Params, res *grid.Result) {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	detail, _ := json.Marshal(map[string]any{"bbox": p.BBox, "clipped": p.Boundary != nil})
	if _, err := st.CreateRun(ctx, store.Run{
		Kind:       store.RunKindGrid,
		Status:     store.RunStatusComplete,
		CellAreaHa: p.CellAreaHa,
		CellCount:  len(res.Cells),
		PointCount: len(res.Points),
		Detail:     string(detail),
	}); err != nil {
		zap.L().Warn("record grid run", zap.Error(err))
	}
}

func init() {
	gridCmd.Flags().String("boundary", "", "field boundary: GeoJSON/shapefile path or http(s)/ftp URL")
	gridCmd.Flags().String("bbox", "", "area of interest as swLat,swLng,neLat,neLng")
	gridCmd.Flags().Float64("cell-area", 0, "target cell area in hectares (default from config)")
	gridCmd.Flags().String("format", "shapefile", "output format: shapefile, geojson, csv, xlsx")
	gridCmd.Flags().String("geometry", "points", "feature geometry for shapefile/geojson output: points, cells")
	gridCmd.Flags().String("out", "", "output file path (default derived from format)")
	rootCmd.AddCommand(gridCmd)
}
