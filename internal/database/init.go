package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/config"
)

// Initialize creates a database connection pool and applies pending migrations
func Initialize(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	if logger != nil {
		entry := logger.WithField("component", "database")
		if len(applied) == 0 {
			entry.Debug("Schema up to date")
		} else {
			entry.WithField("migrations", applied).Info("Applied migrations")
		}
	}
	return db, nil
}
