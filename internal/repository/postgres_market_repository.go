package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yourusername/limni-research/internal/database"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

// Legacy snapshots were keyed a few hours either side of the canonical open.
const (
	legacyWindowBefore = 8 * time.Hour
	legacyWindowAfter  = 6 * time.Hour
)

// PostgresPerformanceRepository implements PerformanceRepository for PostgreSQL
type PostgresPerformanceRepository struct {
	db *database.DB
}

// NewPostgresPerformanceRepository creates a new performance repository
func NewPostgresPerformanceRepository(db *database.DB) *PostgresPerformanceRepository {
	return &PostgresPerformanceRepository{db: db}
}

// Insert appends snapshot rows as-is; duplicates are collapsed on read
func (p *PostgresPerformanceRepository) Insert(ctx context.Context, rows []models.WeeklyPerformance) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	query := `
		INSERT INTO performance_snapshots (week_open_utc, model, asset_class, percent, priced, total, returns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, row := range rows {
		returns := row.Returns
		if returns == nil {
			returns = []models.PairReturn{}
		}
		returnsJSON, err := json.Marshal(returns)
		if err != nil {
			return fmt.Errorf("failed to encode pair returns: %w", err)
		}
		batch.Queue(query,
			row.WeekOpenUTC.UTC(), string(row.Model), string(row.AssetClass), row.Percent, row.Priced, row.Total, returnsJSON,
		)
	}

	results := p.db.GetPool().SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert performance snapshot: %w", err)
		}
	}
	return nil
}

// GetWeeklyReturns loads every snapshot that normalizes onto weekOpen and
// keeps the best-covered row per model and asset class
func (p *PostgresPerformanceRepository) GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error) {
	canonical := weeks.Normalize(weekOpen)
	query := `
		SELECT week_open_utc, model, asset_class, percent, priced, total, returns
		FROM performance_snapshots
		WHERE week_open_utc >= $1 AND week_open_utc <= $2
		ORDER BY week_open_utc ASC, id ASC
	`
	rows, err := p.db.Query(ctx, query, canonical.Add(-legacyWindowBefore), canonical.Add(legacyWindowAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to query performance snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.WeeklyPerformance
	for rows.Next() {
		var (
			row         models.WeeklyPerformance
			model       string
			assetClass  string
			returnsJSON []byte
		)
		if err := rows.Scan(&row.WeekOpenUTC, &model, &assetClass, &row.Percent, &row.Priced, &row.Total, &returnsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan performance snapshot: %w", err)
		}
		if !weeks.Normalize(row.WeekOpenUTC).Equal(canonical) {
			continue
		}
		row.Model = models.StrategyModel(model)
		row.AssetClass = models.AssetClass(assetClass)
		if len(returnsJSON) > 0 {
			if err := json.Unmarshal(returnsJSON, &row.Returns); err != nil {
				return nil, fmt.Errorf("failed to decode pair returns: %w", err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, models.ErrNotFound
	}
	return weeks.Dedupe(out), nil
}

// PostgresSignalRepository implements SignalRepository for PostgreSQL
type PostgresSignalRepository struct {
	db *database.DB
}

// NewPostgresSignalRepository creates a new signal repository
func NewPostgresSignalRepository(db *database.DB) *PostgresSignalRepository {
	return &PostgresSignalRepository{db: db}
}

// InsertBatch stores legs under their normalized week
func (s *PostgresSignalRepository) InsertBatch(ctx context.Context, records []models.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows := make([][]any, len(records))
		for i, rec := range records {
			rows[i] = []any{
				weeks.Normalize(rec.WeekOpenUTC), rec.Symbol, string(rec.AssetClass), string(rec.Model), string(rec.Direction),
			}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"research_signals"},
			[]string{"week_open_utc", "symbol", "asset_class", "model", "direction"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert signals: %w", err)
		}
		return nil
	})
}

// GetSignals returns the legs for weekOpen filtered by asset class and symbol
func (s *PostgresSignalRepository) GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error) {
	classes := make([]string, len(assetClasses))
	for i, ac := range assetClasses {
		classes[i] = string(ac)
	}
	query := `
		SELECT symbol, asset_class, model, direction
		FROM research_signals
		WHERE week_open_utc = $1
		  AND (cardinality($2::text[]) = 0 OR asset_class = ANY($2))
		  AND (cardinality($3::text[]) = 0 OR symbol = ANY($3))
		ORDER BY id ASC
	`
	if symbols == nil {
		symbols = []string{}
	}
	rows, err := s.db.Query(ctx, query, weeks.Normalize(weekOpen), classes, symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var legs []models.Leg
	for rows.Next() {
		var symbol, assetClass, model, direction string
		if err := rows.Scan(&symbol, &assetClass, &model, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		legs = append(legs, models.Leg{
			Symbol:     symbol,
			AssetClass: models.AssetClass(assetClass),
			Model:      models.StrategyModel(model),
			Direction:  models.Direction(direction),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return legs, nil
}

// PostgresPriceRepository implements PriceRepository for PostgreSQL
type PostgresPriceRepository struct {
	db *database.DB
}

// NewPostgresPriceRepository creates a new price repository
func NewPostgresPriceRepository(db *database.DB) *PostgresPriceRepository {
	return &PostgresPriceRepository{db: db}
}

// Upsert writes open/close prices keyed by normalized week and symbol
func (p *PostgresPriceRepository) Upsert(ctx context.Context, prices []models.WeeklyPrice) error {
	query := `
		INSERT INTO weekly_prices (week_open_utc, symbol, asset_class, open_price, close_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (week_open_utc, symbol)
		DO UPDATE SET asset_class = EXCLUDED.asset_class,
		              open_price = EXCLUDED.open_price,
		              close_price = EXCLUDED.close_price
	`
	for _, price := range prices {
		_, err := p.db.Exec(ctx, query,
			weeks.Normalize(price.WeekOpenUTC), price.Symbol, string(price.AssetClass), price.Open, price.Close,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert weekly price: %w", err)
		}
	}
	return nil
}

// GetWeeklyChanges returns percent moves for the symbols that have prices
func (p *PostgresPriceRepository) GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error) {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	query := `
		SELECT symbol, open_price, close_price
		FROM weekly_prices
		WHERE week_open_utc = $1 AND symbol = ANY($2)
	`
	rows, err := p.db.Query(ctx, query, weeks.Normalize(weekOpen), symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to query weekly prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var price models.WeeklyPrice
		if err := rows.Scan(&price.Symbol, &price.Open, &price.Close); err != nil {
			return nil, fmt.Errorf("failed to scan weekly price: %w", err)
		}
		if pct, ok := price.ChangePct(); ok {
			out[price.Symbol] = pct
		}
	}
	return out, rows.Err()
}
