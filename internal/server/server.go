// Package server exposes grid generation, shapefile export, interpolation
// and run history over HTTP. All state lives in the injected store; handlers
// are safe for concurrent use.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terraviva/soilgrid/internal/boundary"
	"github.com/terraviva/soilgrid/internal/export"
	"github.com/terraviva/soilgrid/internal/feature"
	"github.com/terraviva/soilgrid/internal/geodesy"
	"github.com/terraviva/soilgrid/internal/grid"
	"github.com/terraviva/soilgrid/internal/interp"
	"github.com/terraviva/soilgrid/internal/shapefile"
	"github.com/terraviva/soilgrid/internal/store"
)

// Options configures the HTTP surface.
type Options struct {
	DefaultCellAreaHa float64 // used when a grid request omits cell_area_ha
	BaseName          string  // shapefile archive base name
}

// Server holds the handler dependencies.
type Server struct {
	store  store.Store
	runner *interp.Runner
	opts   Options
}

// New builds a Server. The runner may be nil when interpolation is not
// configured; the endpoint then responds 503.
func New(st store.Store, runner *interp.Runner, opts Options) *Server {
	if opts.BaseName == "" {
		opts.BaseName = "sampling_grid"
	}
	return &Server{store: st, runner: runner, opts: opts}
}

// Handler assembles the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/grid", s.handleGrid)
		r.Post("/grid/shapefile", s.handleGridShapefile)
		r.Post("/interpolate", s.handleInterpolate)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// gridRequest is the body of POST /api/grid and /api/grid/shapefile. Either
// bbox or boundary must be present; when both are, bbox wins and the
// boundary only clips.
type gridRequest struct {
	CellAreaHa float64         `json:"cell_area_ha"`
	BBox       *bboxPayload    `json:"bbox,omitempty"`
	Boundary   json.RawMessage `json:"boundary,omitempty"`
}

type bboxPayload struct {
	SWLat float64 `json:"sw_lat"`
	SWLng float64 `json:"sw_lng"`
	NELat float64 `json:"ne_lat"`
	NELng float64 `json:"ne_lng"`
}

type gridResponse struct {
	RunID  string             `json:"run_id,omitempty"`
	Cells  []grid.Cell        `json:"cells"`
	Points []grid.SamplePoint `json:"points"`
}

func (s *Server) buildParams(req gridRequest) (grid.Params, error) {
	p := grid.Params{CellAreaHa: req.CellAreaHa}
	if p.CellAreaHa == 0 {
		p.CellAreaHa = s.opts.DefaultCellAreaHa
	}

	if req.Boundary != nil {
		b, err := boundary.ParseGeoJSON(req.Boundary)
		if err != nil {
			return grid.Params{}, err
		}
		p.Boundary = b.Ring
		p.BBox = b.BBox
	}
	if req.BBox != nil {
		p.BBox = geodesy.NewBBox(req.BBox.SWLat, req.BBox.SWLng, req.BBox.NELat, req.BBox.NELng)
	}
	if req.BBox == nil && req.Boundary == nil {
		return grid.Params{}, eris.New("server: request needs a bbox or a boundary")
	}
	return p, nil
}

func (s *Server) generate(r *http.Request) (*grid.Result, grid.Params, error) {
	var req gridRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, grid.Params{}, eris.Wrap(err, "server: decode grid request")
	}
	p, err := s.buildParams(req)
	if err != nil {
		return nil, grid.Params{}, err
	}
	res, err := grid.Generate(p)
	if err != nil {
		return nil, grid.Params{}, err
	}
	return res, p, nil
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	res, p, err := s.generate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	run := s.recordGridRun(r, p, res)
	writeJSON(w, http.StatusOK, gridResponse{RunID: run, Cells: res.Cells, Points: res.Points})
}

func (s *Server) handleGridShapefile(w http.ResponseWriter, r *http.Request) {
	res, p, err := s.generate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	kind := feature.KindPoint
	feats := feature.PointsFromGrid(res)
	if r.URL.Query().Get("geometry") == "cells" {
		kind = feature.KindPolygon
		feats = feature.CellsFromGrid(res)
	}

	ds, err := shapefile.Encode(feats, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	archive, err := export.Archive(ds, s.opts.BaseName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.recordGridRun(r, p, res)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", s.opts.BaseName+".zip"))
	w.WriteHeader(http.StatusOK)
	w.Write(archive)
}

// recordGridRun persists the run and returns its id; persistence failures
// are logged but never fail the request.
func (s *Server) recordGridRun(r *http.Request, p grid.Params, res *grid.Result) string {
	detail, _ := json.Marshal(map[string]any{"bbox": p.BBox, "clipped": p.Boundary != nil})
	run, err := s.store.CreateRun(r.Context(), store.Run{
		Kind:       store.RunKindGrid,
		Status:     store.RunStatusComplete,
		CellAreaHa: p.CellAreaHa,
		CellCount:  len(res.Cells),
		PointCount: len(res.Points),
		Detail:     string(detail),
	})
	if err != nil {
		zap.L().Error("record grid run", zap.Error(err))
		return ""
	}
	return run.ID
}

type interpolateResponse struct {
	RunID string         `json:"run_id,omitempty"`
	Stats []interp.Stats `json:"stats"`
}

func (s *Server) handleInterpolate(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, eris.New("server: interpolation is not configured"))
		return
	}

	var req interp.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, eris.Wrap(err, "server: decode interpolate request"))
		return
	}

	stats, err := s.runner.Run(r.Context(), req)
	status := store.RunStatusComplete
	if err != nil {
		status = store.RunStatusFailed
	}

	detail, _ := json.Marshal(stats)
	run, storeErr := s.store.CreateRun(r.Context(), store.Run{
		Kind:   store.RunKindInterpolation,
		Status: status,
		Method: req.Method,
		Detail: string(detail),
	})
	if storeErr != nil {
		zap.L().Error("record interpolation run", zap.Error(storeErr))
	}

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := interpolateResponse{Stats: stats}
	if run != nil {
		resp.RunID = run.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{Kind: store.RunKind(q.Get("kind"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("server: limit must be an integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.New("server: offset must be an integer"))
			return
		}
		filter.Offset = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
