package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/terraviva/soilgrid/internal/db"
	"github.com/terraviva/soilgrid/internal/store"
)

// initStore opens the configured run-history backend and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "soilgrid.db"
		}
		s, err := store.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		st = s
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = store.NewPostgres(pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
