package models

import (
	"time"

	"github.com/google/uuid"
)

// ResearchMode selects how weekly returns are produced
type ResearchMode string

const (
	ModeAsTradedReplay  ResearchMode = "as_traded_replay"
	ModeHypotheticalSim ResearchMode = "hypothetical_sim"
)

// Provider is the trading-account provider tag
type Provider string

const (
	ProviderOanda  Provider = "oanda"
	ProviderBitget Provider = "bitget"
	ProviderMT5    Provider = "mt5"
)

// AssetClass groups instruments that share sizing conventions
type AssetClass string

const (
	AssetClassFX          AssetClass = "fx"
	AssetClassIndices     AssetClass = "indices"
	AssetClassCommodities AssetClass = "commodities"
	AssetClassCrypto      AssetClass = "crypto"
)

// StrategyModel names a signal-producing model
type StrategyModel string

const (
	ModelAntikythera StrategyModel = "antikythera"
	ModelBlended     StrategyModel = "blended"
	ModelDealer      StrategyModel = "dealer"
	ModelCommercial  StrategyModel = "commercial"
	ModelSentiment   StrategyModel = "sentiment"
)

// LegMode controls whether model legs are kept or netted per symbol
type LegMode string

const (
	LegModeFull    LegMode = "full_legs"
	LegModeNetOnly LegMode = "net_only"
)

// ExecutionOrder controls leg accounting order within a week
type ExecutionOrder string

const (
	OrderGroupedBySymbol ExecutionOrder = "grouped_by_symbol"
	OrderLegSequence     ExecutionOrder = "leg_sequence"
)

// SizingPolicy selects how legs are converted into exposure
type SizingPolicy string

const (
	SizingBrokerNative SizingPolicy = "broker_native"
	SizingFixedRisk    SizingPolicy = "fixed_risk"
)

// Direction is a leg's directional call
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Sign returns +1 for LONG, -1 for SHORT and 0 otherwise
func (d Direction) Sign() float64 {
	switch d {
	case DirectionLong:
		return 1
	case DirectionShort:
		return -1
	default:
		return 0
	}
}

// DateRange is an ISO timestamp interval, from inclusive and to exclusive
type DateRange struct {
	From string `json:"from" validate:"required,rfc3339"`
	To   string `json:"to" validate:"required,rfc3339"`
}

// Universe selects asset classes and an optional symbol filter
type Universe struct {
	AssetClasses []AssetClass `json:"assetClasses" validate:"dive,assetclass"`
	Symbols      []string     `json:"symbols,omitempty"`
}

// Execution holds leg handling rules
type Execution struct {
	LegMode        LegMode        `json:"legMode" validate:"oneof=full_legs net_only"`
	IncludeNeutral bool           `json:"includeNeutral"`
	Order          ExecutionOrder `json:"order" validate:"oneof=grouped_by_symbol leg_sequence"`
}

// StopLoss is a fractional percent stop
type StopLoss struct {
	Type  string  `json:"type" validate:"omitempty,oneof=pct"`
	Value float64 `json:"value"`
}

// Trailing describes a trailing profit lock on the percent-equity curve
type Trailing struct {
	StartPct  float64 `json:"startPct"`
	OffsetPct float64 `json:"offsetPct"`
	Adaptive  bool    `json:"adaptive,omitempty"`
}

// Risk holds sizing and margin parameters
type Risk struct {
	StartingEquity *float64     `json:"startingEquity,omitempty"`
	RiskPerTrade   *float64     `json:"riskPerTrade,omitempty"`
	MarginBuffer   float64      `json:"marginBuffer"`
	Leverage       float64      `json:"leverage"`
	Sizing         SizingPolicy `json:"sizing" validate:"oneof=broker_native fixed_risk"`
	StopLoss       *StopLoss    `json:"stopLoss,omitempty"`
	Trailing       *Trailing    `json:"trailing,omitempty"`
}

// Realism holds cost frictions and fill rules
type Realism struct {
	SlippageBps       *float64 `json:"slippageBps,omitempty"`
	CommissionBps     *float64 `json:"commissionBps,omitempty"`
	AllowPartialFills bool     `json:"allowPartialFills"`
}

// ResearchConfig fully determines a research run
type ResearchConfig struct {
	Mode       ResearchMode    `json:"mode" validate:"oneof=as_traded_replay hypothetical_sim"`
	AccountKey string          `json:"accountKey,omitempty"`
	Provider   Provider        `json:"provider" validate:"oneof=oanda bitget mt5"`
	DateRange  DateRange       `json:"dateRange"`
	Universe   Universe        `json:"universe"`
	Models     []StrategyModel `json:"models" validate:"dive,strategymodel"`
	Execution  Execution       `json:"execution"`
	Risk       Risk            `json:"risk"`
	Realism    Realism         `json:"realism"`
}

// Clone returns a deep copy so callers' configs are never mutated
func (c ResearchConfig) Clone() ResearchConfig {
	out := c
	out.Universe.AssetClasses = append([]AssetClass(nil), c.Universe.AssetClasses...)
	if c.Universe.Symbols != nil {
		out.Universe.Symbols = append([]string(nil), c.Universe.Symbols...)
	}
	out.Models = append([]StrategyModel(nil), c.Models...)
	if c.Risk.StartingEquity != nil {
		v := *c.Risk.StartingEquity
		out.Risk.StartingEquity = &v
	}
	if c.Risk.RiskPerTrade != nil {
		v := *c.Risk.RiskPerTrade
		out.Risk.RiskPerTrade = &v
	}
	if c.Risk.StopLoss != nil {
		v := *c.Risk.StopLoss
		out.Risk.StopLoss = &v
	}
	if c.Risk.Trailing != nil {
		v := *c.Risk.Trailing
		out.Risk.Trailing = &v
	}
	if c.Realism.SlippageBps != nil {
		v := *c.Realism.SlippageBps
		out.Realism.SlippageBps = &v
	}
	if c.Realism.CommissionBps != nil {
		v := *c.Realism.CommissionBps
		out.Realism.CommissionBps = &v
	}
	return out
}

// Assumptions documents the simplifications a run was computed under
type Assumptions struct {
	DataGranularity string   `json:"dataGranularity"`
	Notes           []string `json:"notes"`
}

// Headline holds the top-level run statistics
type Headline struct {
	TotalReturnPct      float64 `json:"totalReturnPct"`
	StaticDrawdownPct   float64 `json:"staticDrawdownPct"`
	TrailingDrawdownPct float64 `json:"trailingDrawdownPct"`
	WinRatePct          float64 `json:"winRatePct"`
	Trades              int     `json:"trades"`
	PricedTrades        int     `json:"pricedTrades"`
}

// RiskSummary holds margin and fill statistics
type RiskSummary struct {
	AvgMarginUsedPct  float64 `json:"avgMarginUsedPct"`
	PeakMarginUsedPct float64 `json:"peakMarginUsedPct"`
	FillRatePct       float64 `json:"fillRatePct"`
}

// EquityPoint is one week's point on the percent-equity curve
type EquityPoint struct {
	TsUTC             string   `json:"ts_utc"`
	EquityPct         float64  `json:"equity_pct"`
	EquityUSD         *float64 `json:"equity_usd,omitempty"`
	StaticBaselineUSD *float64 `json:"static_baseline_usd,omitempty"`
	LockPct           *float64 `json:"lock_pct"`
}

// WeeklyRow is one simulated week
type WeeklyRow struct {
	WeekOpenUTC         string  `json:"week_open_utc"`
	ReturnPct           float64 `json:"return_pct"`
	StaticDrawdownPct   float64 `json:"static_drawdown_pct"`
	TrailingDrawdownPct float64 `json:"trailing_drawdown_pct"`
}

// ModelBreakdown aggregates a model's contribution
type ModelBreakdown struct {
	Model               StrategyModel `json:"model"`
	ReturnPct           float64       `json:"return_pct"`
	StaticDrawdownPct   float64       `json:"static_drawdown_pct"`
	TrailingDrawdownPct float64       `json:"trailing_drawdown_pct"`
	Trades              int           `json:"trades"`
}

// SymbolBreakdown aggregates a symbol's contribution
type SymbolBreakdown struct {
	Symbol     string  `json:"symbol"`
	ReturnPct  float64 `json:"return_pct"`
	WinRatePct float64 `json:"win_rate_pct"`
	Trades     int     `json:"trades"`
}

// ResearchRunResult is the immutable output of a simulation
type ResearchRunResult struct {
	RunID       string            `json:"runId"`
	ConfigHash  string            `json:"configHash"`
	GeneratedAt string            `json:"generatedAt"`
	Assumptions Assumptions       `json:"assumptions"`
	Headline    Headline          `json:"headline"`
	Risk        RiskSummary       `json:"risk"`
	EquityCurve []EquityPoint     `json:"equityCurve"`
	Weekly      []WeeklyRow       `json:"weekly"`
	ByModel     []ModelBreakdown  `json:"byModel"`
	BySymbol    []SymbolBreakdown `json:"bySymbol"`
}

// RunStatus is the lifecycle state of a research run
type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusError    RunStatus = "error"
)

// ResearchRun is the persisted record of a run
type ResearchRun struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	Config      ResearchConfig     `db:"config_json" json:"config"`
	ConfigHash  string             `db:"config_hash" json:"configHash"`
	Result      *ResearchRunResult `db:"result_json" json:"result"`
	Status      RunStatus          `db:"status" json:"status"`
	Error       *string            `db:"error" json:"error"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
	CompletedAt *time.Time         `db:"completed_at" json:"completedAt"`
}
