// Package store persists the dashboard's run history: one row per grid
// generation or interpolation request. The geometry core keeps no state;
// only the CLI and server layers record runs here.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRunNotFound reports a GetRun miss regardless of the backing driver.
var ErrRunNotFound = eris.New("store: run not found")

// RunKind distinguishes grid-generation runs from interpolation runs.
type RunKind string

const (
	RunKindGrid          RunKind = "grid"
	RunKindInterpolation RunKind = "interpolation"
)

// RunStatus is the terminal state of a recorded run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded request. Detail holds a JSON blob of the request
// parameters and outcome; the schema varies by kind.
type Run struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	Status     RunStatus `json:"status"`
	CellAreaHa float64   `json:"cell_area_ha,omitempty"`
	CellCount  int       `json:"cell_count,omitempty"`
	PointCount int       `json:"point_count,omitempty"`
	Method     string    `json:"method,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	Kind   RunKind `json:"kind,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}

// Store is the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context, run Run) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 50

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func stamp(run Run, id string) *Run {
	run.ID = id
	run.CreatedAt = time.Now().UTC()
	return &run
}
