package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/vladse1/CHP/internal/seen"
)

func initStore(ctx context.Context) (seen.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return seen.NewMemory(cfg.Store.Retention), nil
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "chp-watch.db"
		}
		return seen.NewSQLite(ctx, path, cfg.Store.Retention)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires store.database_url (CHP_STORE_DATABASE_URL)")
		}
		return seen.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Retention)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
