package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/terraviva/soilgrid/internal/db"
)

// PostgresStore implements Store over a pgx pool, for multi-user installs
// that share one run history.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pool. The caller owns pool construction so
// tests can substitute pgxmock.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	cell_area_ha DOUBLE PRECISION NOT NULL DEFAULT 0,
	cell_count   INTEGER NOT NULL DEFAULT 0,
	point_count  INTEGER NOT NULL DEFAULT 0,
	method       TEXT NOT NULL DEFAULT '',
	detail       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run Run) (*Run, error) {
	out := stamp(run, uuid.New().String())

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, status, cell_area_ha, cell_count, point_count, method, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		out.ID, string(out.Kind), string(out.Status), out.CellAreaHa,
		out.CellCount, out.PointCount, out.Method, out.Detail, out.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return out, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, status, cell_area_ha, cell_count, point_count, method, detail, created_at
		 FROM runs WHERE id = $1`, id)

	var r Run
	err := row.Scan(&r.ID, &r.Kind, &r.Status, &r.CellAreaHa,
		&r.CellCount, &r.PointCount, &r.Method, &r.Detail, &r.CreatedAt)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrRunNotFound, "postgres: run %s", id)
		}
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, kind, status, cell_area_ha, cell_count, point_count, method, detail, created_at
		 FROM runs`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, string(filter.Kind), effectiveLimit(filter.Limit), filter.Offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		args = append(args, effectiveLimit(filter.Limit), filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Status, &r.CellAreaHa,
			&r.CellCount, &r.PointCount, &r.Method, &r.Detail, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate runs")
	}
	return out, nil
}
