// Package interp invokes the external statistical interpolation tool, one
// subprocess per soil parameter, through a bounded worker queue. The tool is
// opaque: it receives a feature collection plus numeric parameters and
// reports raster availability and min/max statistics on stdout. Nothing in
// the grid core depends on this package.
package interp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Method names accepted by the interpolation tool. They are passed through
// unvalidated; the tool reports unknown methods itself.
const (
	MethodKriging = "kriging"
	MethodIDW     = "idw"
)

// Request describes one interpolation job over a sample dataset.
type Request struct {
	InputPath    string   `yaml:"input" json:"input"`
	OutputDir    string   `yaml:"output_dir" json:"output_dir"`
	Method       string   `yaml:"method" json:"method"`
	Resolution   float64  `yaml:"resolution" json:"resolution"`
	SearchRadius float64  `yaml:"search_radius" json:"search_radius"`
	Parameters   []string `yaml:"parameters" json:"parameters"`
}

// Stats is the per-parameter outcome reported by the tool. A failed
// parameter carries its error string and Available=false; other parameters
// are unaffected.
type Stats struct {
	Parameter string  `yaml:"parameter" json:"parameter"`
	Raster    string  `yaml:"raster,omitempty" json:"raster,omitempty"`
	Available bool    `yaml:"available" json:"available"`
	Min       float64 `yaml:"min" json:"min"`
	Max       float64 `yaml:"max" json:"max"`
	Error     string  `yaml:"error,omitempty" json:"error,omitempty"`
}

// Options configures the runner.
type Options struct {
	ToolPath    string        // interpolation executable
	Workers     int           // max concurrent subprocesses
	TaskTimeout time.Duration // per-parameter deadline
	RatePerSec  float64       // dispatch rate limit; 0 disables
}

// Runner dispatches interpolation subprocesses with bounded concurrency.
type Runner struct {
	opts    Options
	limiter *rate.Limiter
}

// NewRunner builds a Runner, applying defaults for unset options.
func NewRunner(opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.TaskTimeout == 0 {
		opts.TaskTimeout = 5 * time.Minute
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return &Runner{opts: opts, limiter: limiter}
}

// Run interpolates every requested parameter, at most Workers at a time,
// and writes a YAML manifest of the outcome next to the rasters. Each
// parameter is an independent task: a tool failure is recorded in that
// parameter's Stats rather than aborting the batch. Run itself fails only
// on invalid input or context cancellation.
func (r *Runner) Run(ctx context.Context, req Request) ([]Stats, error) {
	if r.opts.ToolPath == "" {
		return nil, eris.New("interp: tool path is not configured")
	}
	if len(req.Parameters) == 0 {
		return nil, eris.New("interp: no parameters requested")
	}

	log := zap.L().With(
		zap.String("method", req.Method),
		zap.Int("parameters", len(req.Parameters)),
	)
	log.Info("starting interpolation batch")

	results := make([]Stats, len(req.Parameters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, param := range req.Parameters {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return eris.Wrap(err, "interp: wait for dispatch slot")
			}
			results[i] = r.runOne(gctx, req, param)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if req.OutputDir != "" {
		if err := writeManifest(req, results); err != nil {
			return nil, err
		}
	}

	log.Info("interpolation batch complete")
	return results, nil
}

// runOne executes the tool for a single parameter under the task timeout.
func (r *Runner) runOne(ctx context.Context, req Request, param string) Stats {
	tctx, cancel := context.WithTimeout(ctx, r.opts.TaskTimeout)
	defer cancel()

	args := []string{
		"--input", req.InputPath,
		"--parameter", param,
		"--method", req.Method,
		"--resolution", strconv.FormatFloat(req.Resolution, 'f', -1, 64),
		"--search-radius", strconv.FormatFloat(req.SearchRadius, 'f', -1, 64),
	}
	if req.OutputDir != "" {
		args = append(args, "--output-dir", req.OutputDir)
	}

	out, err := exec.CommandContext(tctx, r.opts.ToolPath, args...).Output()
	if err != nil {
		zap.L().Warn("interpolation task failed",
			zap.String("parameter", param),
			zap.Error(err),
		)
		return Stats{Parameter: param, Error: taskError(tctx, err)}
	}

	var payload struct {
		Raster string  `json:"raster"`
		Min    float64 `json:"min"`
		Max    float64 `json:"max"`
		Error  string  `json:"error"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return Stats{Parameter: param, Error: "unparseable tool output: " + err.Error()}
	}
	if payload.Error != "" {
		return Stats{Parameter: param, Error: payload.Error}
	}

	return Stats{
		Parameter: param,
		Raster:    payload.Raster,
		Available: payload.Raster != "",
		Min:       payload.Min,
		Max:       payload.Max,
	}
}

func taskError(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "interpolation timed out"
	}
	return err.Error()
}

// writeManifest records the request and per-parameter outcomes as YAML so a
// run's rasters remain interpretable after download.
func writeManifest(req Request, results []Stats) error {
	manifest := struct {
		Request Request `yaml:"request"`
		Results []Stats `yaml:"results"`
	}{Request: req, Results: results}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return eris.Wrap(err, "interp: marshal manifest")
	}
	path := filepath.Join(req.OutputDir, "manifest.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "interp: write manifest %s", path)
	}
	return nil
}
