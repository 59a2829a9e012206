package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/limni-research/internal/models"
)

// ResearchRunRepository memoizes research runs by config hash.
// Runs are append-only; a hash may map to several rows.
type ResearchRunRepository interface {
	// FindByConfigHash returns the most recent complete run for hash,
	// or models.ErrNotFound
	FindByConfigHash(ctx context.Context, hash string) (*models.ResearchRun, error)
	// Save records a complete run. The stored result carries the new run id.
	Save(ctx context.Context, cfg models.ResearchConfig, hash string, result *models.ResearchRunResult) (*models.ResearchRun, error)
	// SaveFailed records a run that ended in error
	SaveFailed(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) (*models.ResearchRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error)
}

// PerformanceRepository stores realized weekly performance snapshots
type PerformanceRepository interface {
	Insert(ctx context.Context, rows []models.WeeklyPerformance) error
	GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error)
}

// SignalRepository stores model legs by week
type SignalRepository interface {
	InsertBatch(ctx context.Context, records []models.SignalRecord) error
	GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error)
}

// PriceRepository stores weekly open/close prices
type PriceRepository interface {
	Upsert(ctx context.Context, prices []models.WeeklyPrice) error
	GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error)
}
