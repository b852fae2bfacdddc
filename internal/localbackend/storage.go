package localbackend

import (
	"context"
	"fmt"

	"contractgen/internal/store"
	"contractgen/internal/store/memory"
	"contractgen/internal/store/postgres"
	"contractgen/internal/store/sqlite"
)

// StoreConfig selects the persistent store.
type StoreConfig struct {
	Driver      store.Driver
	SQLitePath  string
	PostgresDSN string
}

// OpenStore builds the configured store. An empty driver means SQLite.
func OpenStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case store.DriverMemory:
		return memory.New(), nil
	case "", store.DriverSQLite:
		return sqlite.New(ctx, cfg.SQLitePath)
	case store.DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
