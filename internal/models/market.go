package models

import "time"

// Leg is one model's directional call on one symbol for one week
type Leg struct {
	Symbol     string        `json:"symbol"`
	AssetClass AssetClass    `json:"assetClass"`
	Model      StrategyModel `json:"model"`
	Direction  Direction     `json:"direction"`
}

// PairReturn is a realized percent return for one symbol
type PairReturn struct {
	Pair    string  `json:"pair"`
	Percent float64 `json:"percent"`
}

// WeeklyPerformance is a realized weekly result for one model and asset class
type WeeklyPerformance struct {
	WeekOpenUTC time.Time     `db:"week_open_utc" json:"week_open_utc"`
	Model       StrategyModel `db:"model" json:"model"`
	AssetClass  AssetClass    `db:"asset_class" json:"asset_class"`
	Percent     float64       `db:"percent" json:"percent"`
	Priced      int           `db:"priced" json:"priced"`
	Total       int           `db:"total" json:"total"`
	Returns     []PairReturn  `db:"returns" json:"returns,omitempty"`
}

// Score ranks duplicate snapshots of the same logical week; better coverage wins
func (p WeeklyPerformance) Score() int {
	return p.Priced*1000 + p.Total
}

// SignalRecord is a stored leg for a given week
type SignalRecord struct {
	WeekOpenUTC time.Time `db:"week_open_utc" json:"week_open_utc"`
	Leg
}

// WeeklyPrice is the open/close of a symbol over one canonical week
type WeeklyPrice struct {
	WeekOpenUTC time.Time  `db:"week_open_utc" json:"week_open_utc"`
	Symbol      string     `db:"symbol" json:"symbol"`
	AssetClass  AssetClass `db:"asset_class" json:"asset_class"`
	Open        float64    `db:"open_price" json:"open"`
	Close       float64    `db:"close_price" json:"close"`
}

// ChangePct returns the percent move from open to close
func (p WeeklyPrice) ChangePct() (float64, bool) {
	if p.Open <= 0 || p.Close <= 0 {
		return 0, false
	}
	return (p.Close - p.Open) / p.Open * 100, true
}
