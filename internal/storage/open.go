// Package storage opens the configured database.Store.
package storage

import (
	"context"
	"fmt"

	"bytebuddy/config"
	"bytebuddy/internal/database"
	"bytebuddy/internal/database/memstore"
	"bytebuddy/internal/database/mongostore"
	"bytebuddy/internal/logging"
)

// Open connects to the store selected by cfg.Database.Driver and applies
// its migrations. The caller closes the returned store.
func Open(ctx context.Context, cfg *config.Config) (database.Store, error) {
	log := logging.WithComponent("storage")

	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(), nil

	case config.DriverPostgres:
		db, err := database.NewDB(ctx, cfg.PostgresDSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return database.NewRepository(db), nil

	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to create mongo indexes: %w", err)
		}
		log.Info("Connected to MongoDB", "database", cfg.Mongo.Database)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
