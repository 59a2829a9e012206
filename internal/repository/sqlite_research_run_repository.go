package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/limni-research/internal/models"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResearchRunRepository = (*SQLiteResearchRunRepository)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS research_runs (
    id            TEXT PRIMARY KEY,
    config_json   TEXT NOT NULL,
    config_hash   TEXT NOT NULL,
    result_json   TEXT,
    status        TEXT NOT NULL,
    error         TEXT,
    created_at    TEXT NOT NULL,
    completed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_research_runs_config_hash ON research_runs (config_hash, created_at);
`

// SQLiteResearchRunRepository stores runs in a local SQLite file for CLI use
type SQLiteResearchRunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteResearchRunRepository opens (or creates) the database at dbPath
// and ensures the schema exists
func NewSQLiteResearchRunRepository(ctx context.Context, dbPath string) (*SQLiteResearchRunRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	return &SQLiteResearchRunRepository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteResearchRunRepository) Close() error {
	return s.db.Close()
}

const sqliteSelectRun = `
	SELECT id, config_json, config_hash, result_json, status, error, created_at, completed_at
	FROM research_runs
`

// FindByConfigHash retrieves the newest complete run for a config hash
func (s *SQLiteResearchRunRepository) FindByConfigHash(ctx context.Context, hash string) (*models.ResearchRun, error) {
	query := sqliteSelectRun + `
		WHERE config_hash = ? AND status = 'complete'
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`
	run, err := scanSQLiteRun(s.db.QueryRowContext(ctx, query, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find research run by hash: %w", err)
	}
	return run, nil
}

// GetByID retrieves a run by ID
func (s *SQLiteResearchRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error) {
	run, err := scanSQLiteRun(s.db.QueryRowContext(ctx, sqliteSelectRun+" WHERE id = ?", id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get research run: %w", err)
	}
	return run, nil
}

// Save inserts a complete run
func (s *SQLiteResearchRunRepository) Save(ctx context.Context, cfg models.ResearchConfig, hash string, result *models.ResearchRunResult) (*models.ResearchRun, error) {
	run := newCompleteRun(cfg, hash, result, s.now())
	if err := s.insert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// SaveFailed inserts an error run
func (s *SQLiteResearchRunRepository) SaveFailed(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) (*models.ResearchRun, error) {
	run := newFailedRun(cfg, hash, runErr, s.now())
	if err := s.insert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteResearchRunRepository) insert(ctx context.Context, run *models.ResearchRun) error {
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}
	var resultJSON sql.NullString
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
		resultJSON = sql.NullString{String: string(b), Valid: true}
	}
	var completedAt sql.NullString
	if run.CompletedAt != nil {
		completedAt = sql.NullString{String: formatSQLiteTime(*run.CompletedAt), Valid: true}
	}
	var runErr sql.NullString
	if run.Error != nil {
		runErr = sql.NullString{String: *run.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO research_runs (id, config_json, config_hash, result_json, status, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(configJSON), run.ConfigHash, resultJSON, string(run.Status), runErr,
		formatSQLiteTime(run.CreatedAt), completedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.ErrDuplicateKey
		}
		return fmt.Errorf("failed to save research run: %w", err)
	}
	return nil
}

// Fixed-width so lexical order matches time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func scanSQLiteRun(row *sql.Row) (*models.ResearchRun, error) {
	var (
		run         models.ResearchRun
		id          string
		configJSON  string
		resultJSON  sql.NullString
		status      string
		runErr      sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&id, &configJSON, &run.ConfigHash, &resultJSON, &status, &runErr, &createdAt, &completedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidID, id)
	}
	run.ID = parsed
	run.Status = models.RunStatus(status)
	if runErr.Valid {
		msg := runErr.String
		run.Error = &msg
	}
	if run.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if completedAt.Valid {
		ts, err := time.Parse(sqliteTimeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		run.CompletedAt = &ts
	}

	var result []byte
	if resultJSON.Valid {
		result = []byte(resultJSON.String)
	}
	if err := decodeRunPayload(&run, []byte(configJSON), result); err != nil {
		return nil, err
	}
	return &run, nil
}
