package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/datasource"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/repository"
	"github.com/yourusername/limni-research/internal/weeks"
)

// priceIndexBase is the synthetic open used when only a percent move is known
const priceIndexBase = 100.0

// IngestionMetrics tracks one ingestion pass
type IngestionMetrics struct {
	Weeks           int
	EmptyWeeks      int
	Signals         int
	PerformanceRows int
	Prices          int
	Errors          int
	Duration        time.Duration
}

// IngestionService copies week data from a source into the research tables
type IngestionService struct {
	source       datasource.Sources
	signals      repository.SignalRepository
	performance  repository.PerformanceRepository
	prices       repository.PriceRepository
	assetClasses []models.AssetClass
	logger       *logrus.Entry
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(source datasource.Sources, repos *repository.Repositories, logger *logrus.Logger) (*IngestionService, error) {
	if repos == nil || repos.Signals == nil || repos.Performance == nil || repos.Prices == nil {
		return nil, fmt.Errorf("ingestion requires database repositories")
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &IngestionService{
		source:      source,
		signals:     repos.Signals,
		performance: repos.Performance,
		prices:      repos.Prices,
		assetClasses: []models.AssetClass{
			models.AssetClassFX, models.AssetClassIndices, models.AssetClassCommodities, models.AssetClassCrypto,
		},
		logger: logger.WithField("component", "ingestion"),
	}, nil
}

// IngestRange copies every canonical week in [from, to). Weeks without
// data are counted and skipped; other errors are counted and the pass
// continues with the next week.
func (s *IngestionService) IngestRange(ctx context.Context, from, to time.Time) (*IngestionMetrics, error) {
	m := &IngestionMetrics{}
	start := time.Now()

	opens := weeks.Enumerate(from, to)
	s.logger.WithFields(logrus.Fields{
		"from":  weeks.Format(from),
		"to":    weeks.Format(to),
		"weeks": len(opens),
	}).Info("Starting week ingestion")

	for _, open := range opens {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		m.Weeks++
		if err := s.ingestWeek(ctx, open, m); err != nil {
			m.Errors++
			s.logger.WithError(err).WithField("week_open_utc", weeks.Format(open)).Warn("Week ingestion failed")
		}
	}

	m.Duration = time.Since(start)
	s.logger.WithFields(logrus.Fields{
		"weeks":            m.Weeks,
		"empty_weeks":      m.EmptyWeeks,
		"signals":          m.Signals,
		"performance_rows": m.PerformanceRows,
		"prices":           m.Prices,
		"errors":           m.Errors,
		"duration_ms":      m.Duration.Milliseconds(),
	}).Info("Week ingestion complete")
	return m, nil
}

func (s *IngestionService) ingestWeek(ctx context.Context, open time.Time, m *IngestionMetrics) error {
	var legs []models.Leg
	var rows []models.WeeklyPerformance

	if s.source.Signals != nil {
		got, err := s.source.Signals.GetSignals(ctx, open, s.assetClasses, nil)
		if err != nil && !datasource.IsAbsent(err) {
			return fmt.Errorf("fetch signals: %w", err)
		}
		legs = got
	}
	if s.source.Performance != nil {
		got, err := s.source.Performance.GetWeeklyReturns(ctx, open)
		if err != nil && !datasource.IsAbsent(err) {
			return fmt.Errorf("fetch performance: %w", err)
		}
		rows = got
	}
	if len(legs) == 0 && len(rows) == 0 {
		m.EmptyWeeks++
		return nil
	}

	records := make([]models.SignalRecord, len(legs))
	for i, leg := range legs {
		records[i] = models.SignalRecord{WeekOpenUTC: open, Leg: leg}
	}
	if err := s.signals.InsertBatch(ctx, records); err != nil {
		return err
	}
	m.Signals += len(records)

	if err := s.performance.Insert(ctx, rows); err != nil {
		return err
	}
	m.PerformanceRows += len(rows)

	prices, err := s.weekPrices(ctx, open, legs)
	if err != nil {
		return err
	}
	if err := s.prices.Upsert(ctx, prices); err != nil {
		return err
	}
	m.Prices += len(prices)
	return nil
}

// weekPrices turns the source's percent moves into an open/close pair on a
// fixed index base
func (s *IngestionService) weekPrices(ctx context.Context, open time.Time, legs []models.Leg) ([]models.WeeklyPrice, error) {
	if s.source.Prices == nil || len(legs) == 0 {
		return nil, nil
	}
	classes := make(map[string]models.AssetClass, len(legs))
	for _, leg := range legs {
		classes[leg.Symbol] = leg.AssetClass
	}
	symbols := make([]string, 0, len(classes))
	for sym := range classes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	changes, err := s.source.Prices.GetWeeklyChanges(ctx, open, symbols)
	if err != nil {
		if datasource.IsAbsent(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	out := make([]models.WeeklyPrice, 0, len(changes))
	for _, sym := range symbols {
		pct, ok := changes[sym]
		if !ok {
			continue
		}
		out = append(out, models.WeeklyPrice{
			WeekOpenUTC: open,
			Symbol:      sym,
			AssetClass:  classes[sym],
			Open:        priceIndexBase,
			Close:       priceIndexBase * (1 + pct/100),
		})
	}
	return out, nil
}
