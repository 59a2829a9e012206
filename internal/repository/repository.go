package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/limni-research/internal/config"
	"github.com/yourusername/limni-research/internal/database"
)

// Repositories holds all repository implementations.
// Market-data members are nil unless a database is connected.
type Repositories struct {
	Runs        ResearchRunRepository
	Performance PerformanceRepository
	Signals     SignalRepository
	Prices      PriceRepository

	closeFn func() error
}

// NewRepositories creates the PostgreSQL-backed repositories
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &Repositories{
		Runs:        NewPostgresResearchRunRepository(db),
		Performance: NewPostgresPerformanceRepository(db),
		Signals:     NewPostgresSignalRepository(db),
		Prices:      NewPostgresPriceRepository(db),
	}, nil
}

// Open builds repositories for the configured store driver. db may be nil
// unless the store driver is postgres.
func Open(ctx context.Context, cfg *config.Config, db *database.DB) (*Repositories, error) {
	var repos *Repositories
	if db != nil {
		var err error
		if repos, err = NewRepositories(db); err != nil {
			return nil, err
		}
	} else {
		repos = &Repositories{}
	}

	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres store requires a database connection")
		}
	case config.StoreDriverSQLite:
		runs, err := NewSQLiteResearchRunRepository(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		repos.Runs = runs
		repos.closeFn = runs.Close
	case config.StoreDriverMemory:
		repos.Runs = NewMemoryResearchRunRepository()
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	return repos, nil
}

// Close releases store resources not owned by the database pool
func (r *Repositories) Close() error {
	if r.closeFn != nil {
		return r.closeFn()
	}
	return nil
}
