package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/limni-research/internal/models"
)

// Compile-time interface check.
var _ ResearchRunRepository = (*MemoryResearchRunRepository)(nil)

// MemoryResearchRunRepository keeps runs in process memory
type MemoryResearchRunRepository struct {
	mu   sync.RWMutex
	runs []*models.ResearchRun
	now  func() time.Time
}

// NewMemoryResearchRunRepository creates an empty in-memory store
func NewMemoryResearchRunRepository() *MemoryResearchRunRepository {
	return &MemoryResearchRunRepository{now: func() time.Time { return time.Now().UTC() }}
}

// FindByConfigHash returns the most recently saved complete run for hash
func (m *MemoryResearchRunRepository) FindByConfigHash(ctx context.Context, hash string) (*models.ResearchRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.runs) - 1; i >= 0; i-- {
		run := m.runs[i]
		if run.ConfigHash == hash && run.Status == models.RunStatusComplete {
			return copyRun(run), nil
		}
	}
	return nil, models.ErrNotFound
}

// GetByID returns the run with id
func (m *MemoryResearchRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range m.runs {
		if run.ID == id {
			return copyRun(run), nil
		}
	}
	return nil, models.ErrNotFound
}

// Save appends a complete run
func (m *MemoryResearchRunRepository) Save(ctx context.Context, cfg models.ResearchConfig, hash string, result *models.ResearchRunResult) (*models.ResearchRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.append(newCompleteRun(cfg, hash, result, m.now())), nil
}

// SaveFailed appends an error run
func (m *MemoryResearchRunRepository) SaveFailed(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) (*models.ResearchRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.append(newFailedRun(cfg, hash, runErr, m.now())), nil
}

// Len returns the number of stored runs
func (m *MemoryResearchRunRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

func (m *MemoryResearchRunRepository) append(run *models.ResearchRun) *models.ResearchRun {
	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	return copyRun(run)
}

func copyRun(run *models.ResearchRun) *models.ResearchRun {
	out := *run
	out.Config = run.Config.Clone()
	if run.Result != nil {
		result := *run.Result
		out.Result = &result
	}
	return &out
}
