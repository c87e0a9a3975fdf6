package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/terraviva/soilgrid/internal/interp"
	"github.com/terraviva/soilgrid/internal/store"
)

var interpolateCmd = &cobra.Command{
	Use:   "interpolate",
	Short: "Interpolate nutrient maps from sample results",
	Long:  "Runs the external interpolation tool once per soil parameter over an analyzed sample dataset and writes a manifest of the produced rasters.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("interpolate"); err != nil {
			return err
		}

		log := zap.L().With(zap.String("command", "interpolate"))

		input, _ := cmd.Flags().GetString("input")
		outDir, _ := cmd.Flags().GetString("out-dir")
		method, _ := cmd.Flags().GetString("method")
		resolution, _ := cmd.Flags().GetFloat64("resolution")
		radius, _ := cmd.Flags().GetFloat64("search-radius")
		params, _ := cmd.Flags().GetStringSlice("parameters")

		if input == "" {
			return eris.New("--input is required")
		}
		if outDir == "" {
			outDir = cfg.Interp.OutputDir
		}

		runner := interp.NewRunner(interp.Options{
			ToolPath:    cfg.Interp.ToolPath,
			Workers:     cfg.Interp.Workers,
			TaskTimeout: time.Duration(cfg.Interp.TaskTimeoutSecs) * time.Second,
			RatePerSec:  cfg.Interp.RatePerSec,
		})

		req := interp.Request{
			InputPath:    input,
			OutputDir:    outDir,
			Method:       method,
			Resolution:   resolution,
			SearchRadius: radius,
			Parameters:   params,
		}

		start := time.Now()
		stats, err := runner.Run(ctx, req)
		recordInterpRun(ctx, req, stats, err)
		if err != nil {
			return eris.Wrap(err, "interpolate")
		}

		available := 0
		for _, s := range stats {
			if s.Available {
				available++
			} else {
				log.Warn("parameter failed",
					zap.String("parameter", s.Parameter),
					zap.String("error", s.Error),
				)
			}
		}
		log.Info("interpolation complete",
			zap.Int("parameters", len(stats)),
			zap.Int("available", available),
			zap.Duration("elapsed", time.Since(start)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func recordInterpRun(ctx context.Context, req interp.Request, stats []interp.Stats, runErr error) {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run history unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	status := store.RunStatusComplete
	if runErr != nil {
		status = store.RunStatusFailed
	}
	detail, _ := json.Marshal(stats)
	if _, err := st.CreateRun(ctx, store.Run{
		Kind:   store.RunKindInterpolation,
		Status: status,
		Method: req.Method,
		Detail: string(detail),
	}); err != nil {
		zap.L().Warn("record interpolation run", zap.Error(err))
	}
}

func init() {
	interpolateCmd.Flags().String("input", "", "analyzed sample dataset (GeoJSON)")
	interpolateCmd.Flags().String("out-dir", "", "raster output directory (default from config)")
	interpolateCmd.Flags().String("method", interp.MethodKriging, "interpolation method: kriging, idw")
	interpolateCmd.Flags().Float64("resolution", 10, "raster resolution in meters")
	interpolateCmd.Flags().Float64("search-radius", 100, "neighbor search radius in meters")
	interpolateCmd.Flags().StringSlice("parameters", nil, "soil parameters to interpolate (e.g. ph,p,k)")
	rootCmd.AddCommand(interpolateCmd)
}
