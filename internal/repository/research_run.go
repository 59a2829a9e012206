package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/limni-research/internal/models"
)

// newCompleteRun builds the record for a successful run. The result is
// copied and stamped with the new run id so the stored payload and the
// row agree.
func newCompleteRun(cfg models.ResearchConfig, hash string, result *models.ResearchRunResult, now time.Time) *models.ResearchRun {
	id := uuid.New()
	var stored *models.ResearchRunResult
	if result != nil {
		copied := *result
		copied.RunID = id.String()
		stored = &copied
	}
	completed := now
	return &models.ResearchRun{
		ID:          id,
		Config:      cfg.Clone(),
		ConfigHash:  hash,
		Result:      stored,
		Status:      models.RunStatusComplete,
		CreatedAt:   now,
		CompletedAt: &completed,
	}
}

// newFailedRun builds the record for a run that ended in error
func newFailedRun(cfg models.ResearchConfig, hash string, runErr error, now time.Time) *models.ResearchRun {
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}
	completed := now
	return &models.ResearchRun{
		ID:          uuid.New(),
		Config:      cfg.Clone(),
		ConfigHash:  hash,
		Status:      models.RunStatusError,
		Error:       &msg,
		CreatedAt:   now,
		CompletedAt: &completed,
	}
}
