package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

// FixtureWeek is one week of offline data
type FixtureWeek struct {
	WeekOpenUTC string                     `json:"week_open_utc"`
	Signals     []models.Leg               `json:"signals"`
	Performance []models.WeeklyPerformance `json:"performance"`
	Prices      map[string]float64         `json:"prices"`
}

// FixtureFile is the on-disk layout read by FixtureSource
type FixtureFile struct {
	Weeks []FixtureWeek `json:"weeks"`
}

type fixtureWeek struct {
	signals     []models.Leg
	performance []models.WeeklyPerformance
	prices      map[string]float64
}

// FixtureSource serves all three data contracts from a JSON document.
// Week keys are normalized onto canonical week opens when loaded.
type FixtureSource struct {
	weeks map[int64]*fixtureWeek
}

// LoadFixtureFile reads a fixture from disk
func LoadFixtureFile(path string) (*FixtureSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var file FixtureFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return NewFixtureSource(file)
}

// NewFixtureSource indexes fixture weeks by canonical week open
func NewFixtureSource(file FixtureFile) (*FixtureSource, error) {
	src := &FixtureSource{weeks: make(map[int64]*fixtureWeek, len(file.Weeks))}
	for _, fw := range file.Weeks {
		ts, err := weeks.Parse(fw.WeekOpenUTC)
		if err != nil {
			return nil, err
		}
		open := weeks.Normalize(ts)
		wk := src.week(open)
		wk.signals = append(wk.signals, fw.Signals...)
		for _, row := range fw.Performance {
			if row.WeekOpenUTC.IsZero() {
				row.WeekOpenUTC = open
			}
			wk.performance = append(wk.performance, row)
		}
		for sym, pct := range fw.Prices {
			wk.prices[sym] = pct
		}
	}
	for _, wk := range src.weeks {
		wk.performance = weeks.Dedupe(wk.performance)
	}
	return src, nil
}

func (f *FixtureSource) week(open time.Time) *fixtureWeek {
	key := open.Unix()
	wk, ok := f.weeks[key]
	if !ok {
		wk = &fixtureWeek{prices: map[string]float64{}}
		f.weeks[key] = wk
	}
	return wk
}

func (f *FixtureSource) lookup(weekOpen time.Time) (*fixtureWeek, error) {
	wk, ok := f.weeks[weeks.Normalize(weekOpen).Unix()]
	if !ok {
		return nil, NewDataSourceError("fixture", ErrCodeNotFound, weeks.Format(weekOpen), ErrNotFound)
	}
	return wk, nil
}

// GetSignals returns the fixture legs matching the filters
func (f *FixtureSource) GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error) {
	wk, err := f.lookup(weekOpen)
	if err != nil {
		return nil, err
	}
	return FilterLegs(wk.signals, assetClasses, symbols), nil
}

// GetWeeklyReturns returns the fixture performance rows
func (f *FixtureSource) GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error) {
	wk, err := f.lookup(weekOpen)
	if err != nil {
		return nil, err
	}
	return append([]models.WeeklyPerformance(nil), wk.performance...), nil
}

// GetWeeklyChanges returns fixture price changes for the requested symbols
func (f *FixtureSource) GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error) {
	wk, err := f.lookup(weekOpen)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if pct, ok := wk.prices[sym]; ok {
			out[sym] = pct
		}
	}
	return out, nil
}

// FilterLegs keeps legs in the asset classes and, when given, the symbols
func FilterLegs(legs []models.Leg, assetClasses []models.AssetClass, symbols []string) []models.Leg {
	classSet := make(map[models.AssetClass]bool, len(assetClasses))
	for _, ac := range assetClasses {
		classSet[ac] = true
	}
	symbolSet := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		symbolSet[s] = true
	}

	out := make([]models.Leg, 0, len(legs))
	for _, leg := range legs {
		if len(classSet) > 0 && !classSet[leg.AssetClass] {
			continue
		}
		if len(symbolSet) > 0 && !symbolSet[leg.Symbol] {
			continue
		}
		out = append(out, leg)
	}
	return out
}
