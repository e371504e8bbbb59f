// Package datastore opens the backend named by database.driver.
package datastore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/repository/memory"
	"github.com/jwalitptl/clinic-api/internal/repository/mongo"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
)

func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			logger.Info().Msg("Database schema applied")
		}
		return postgres.NewStore(db), nil

	case "mongo":
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		if err := mongo.EnsureIndexes(ctx, client.Database(cfg.Name)); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return mongo.NewStore(client, cfg.Name), nil

	case "memory":
		logger.Warn().Msg("Using in-memory datastore; data is lost on restart")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
