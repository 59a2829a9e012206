package research

import (
	"context"
	"time"

	"github.com/yourusername/limni-research/internal/datasource"
	"github.com/yourusername/limni-research/internal/models"
)

func float64Ptr(v float64) *float64 { return &v }

func baseConfig() models.ResearchConfig {
	return models.ResearchConfig{
		Mode:      models.ModeHypotheticalSim,
		Provider:  models.ProviderOanda,
		DateRange: models.DateRange{From: "2026-01-05T00:00:00Z", To: "2026-01-26T00:00:00Z"},
		Universe:  models.Universe{AssetClasses: []models.AssetClass{models.AssetClassFX}},
		Models:    []models.StrategyModel{models.ModelBlended, models.ModelDealer},
		Execution: models.Execution{
			LegMode: models.LegModeFull,
			Order:   models.OrderLegSequence,
		},
		Risk: models.Risk{
			MarginBuffer: 0.1,
			Leverage:     50,
			Sizing:       models.SizingBrokerNative,
		},
	}
}

type fakeSources struct {
	signals     map[int64][]models.Leg
	performance map[int64][]models.WeeklyPerformance
	changes     map[int64]map[string]float64
	err         error
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		signals:     map[int64][]models.Leg{},
		performance: map[int64][]models.WeeklyPerformance{},
		changes:     map[int64]map[string]float64{},
	}
}

func (f *fakeSources) bundle() datasource.Sources {
	return datasource.Sources{Signals: f, Performance: f, Prices: f}
}

func (f *fakeSources) GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error) {
	if f.err != nil {
		return nil, f.err
	}
	legs, ok := f.signals[weekOpen.Unix()]
	if !ok {
		return nil, datasource.ErrNotFound
	}
	return datasource.FilterLegs(legs, assetClasses, symbols), nil
}

func (f *fakeSources) GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, ok := f.performance[weekOpen.Unix()]
	if !ok {
		return nil, datasource.ErrNotFound
	}
	return rows, nil
}

func (f *fakeSources) GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error) {
	changes, ok := f.changes[weekOpen.Unix()]
	if !ok {
		return map[string]float64{}, nil
	}
	return changes, nil
}

func week(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}
