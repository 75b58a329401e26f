package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dotsetgreg/masquerade/pkg/config"
	"github.com/dotsetgreg/masquerade/pkg/logger"
)

// NewBackend builds the Backend selected by cfg.Storage.Driver.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	timeout := time.Duration(cfg.Storage.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.InfoCF("store", "Opening backend", map[string]any{
		"driver": cfg.Storage.Driver,
	})

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return NewMemoryBackend(), nil
	case config.DriverSQLite:
		return NewSQLiteBackend(cfg.SQLitePath())
	case config.DriverPostgres:
		return NewPostgresBackend(ctx, cfg.Storage.URI)
	case config.DriverMongo:
		return NewMongoBackend(ctx, MongoOptions{
			URI:                cfg.Storage.URI,
			Database:           cfg.Storage.Database,
			ProfilesCollection: cfg.Storage.ProfilesCollection,
			DefaultsCollection: cfg.Storage.DefaultsCollection,
			AuthorsCollection:  cfg.Storage.AuthorsCollection,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
