package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yourusername/limni-research/internal/database"
	"github.com/yourusername/limni-research/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresResearchRunRepository implements ResearchRunRepository for PostgreSQL
type PostgresResearchRunRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewPostgresResearchRunRepository creates a new research run repository
func NewPostgresResearchRunRepository(db *database.DB) ResearchRunRepository {
	return &PostgresResearchRunRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const selectRunColumns = `
	SELECT id, config_json, config_hash, result_json, status, error, created_at, completed_at
	FROM research_runs
`

// FindByConfigHash retrieves the newest complete run for a config hash
func (r *PostgresResearchRunRepository) FindByConfigHash(ctx context.Context, hash string) (*models.ResearchRun, error) {
	query := selectRunColumns + `
		WHERE config_hash = $1 AND status = 'complete'
		ORDER BY created_at DESC
		LIMIT 1
	`
	run, err := scanRun(r.db.QueryRow(ctx, query, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find research run by hash: %w", err)
	}
	return run, nil
}

// GetByID retrieves a run by ID
func (r *PostgresResearchRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, selectRunColumns+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get research run: %w", err)
	}
	return run, nil
}

// Save inserts a complete run
func (r *PostgresResearchRunRepository) Save(ctx context.Context, cfg models.ResearchConfig, hash string, result *models.ResearchRunResult) (*models.ResearchRun, error) {
	run := newCompleteRun(cfg, hash, result, r.now())
	if err := r.insert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// SaveFailed inserts an error run
func (r *PostgresResearchRunRepository) SaveFailed(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) (*models.ResearchRun, error) {
	run := newFailedRun(cfg, hash, runErr, r.now())
	if err := r.insert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *PostgresResearchRunRepository) insert(ctx context.Context, run *models.ResearchRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	var resultJSON []byte
	if run.Result != nil {
		if resultJSON, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
	}

	query := `
		INSERT INTO research_runs (id, config_json, config_hash, result_json, status, error, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query,
		run.ID, configJSON, run.ConfigHash, resultJSON, string(run.Status), run.Error, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("failed to save research run: %w", err)
	}
	return nil
}

func scanRun(row pgx.Row) (*models.ResearchRun, error) {
	var (
		run        models.ResearchRun
		configJSON []byte
		resultJSON []byte
		status     string
	)
	err := row.Scan(
		&run.ID, &configJSON, &run.ConfigHash, &resultJSON, &status, &run.Error, &run.CreatedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	if err := decodeRunPayload(&run, configJSON, resultJSON); err != nil {
		return nil, err
	}
	return &run, nil
}

// decodeRunPayload restores the JSON config and result columns
func decodeRunPayload(run *models.ResearchRun, configJSON, resultJSON []byte) error {
	if err := json.Unmarshal(configJSON, &run.Config); err != nil {
		return fmt.Errorf("failed to decode run config: %w", err)
	}
	if len(resultJSON) > 0 {
		var result models.ResearchRunResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return fmt.Errorf("failed to decode run result: %w", err)
		}
		run.Result = &result
	}
	return nil
}
