// Package research implements the deterministic weekly research backtest:
// config canonicalization and hashing, validation, sizing, drawdowns and
// the simulation loop that turns signal or performance data into a result.
package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/limni-research/internal/datasource"
	"github.com/yourusername/limni-research/internal/logger"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

const (
	// DefaultStartingEquity is the account size used when a config omits one
	DefaultStartingEquity = 100000.0
	// DefaultRiskPerTrade is the fraction of equity lost at the stop under fixed_risk
	DefaultRiskPerTrade     = 0.01
	DefaultFetchConcurrency = 4
	dataGranularityWeekly   = "weekly"
)

// ErrSourceUnavailable is returned when the mode needs a source the engine was built without
var ErrSourceUnavailable = errors.New("data source not configured for mode")

// Engine runs research simulations. It holds no per-run state and is safe
// for concurrent use.
type Engine struct {
	sources          datasource.Sources
	clock            func() time.Time
	logger           *logger.ResearchLogger
	fetchConcurrency int
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for generatedAt
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithFetchConcurrency bounds parallel week fetches
func WithFetchConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fetchConcurrency = n
		}
	}
}

// NewEngine creates a research engine over the given sources
func NewEngine(sources datasource.Sources, log *logrus.Logger, opts ...Option) (*Engine, error) {
	if sources.Signals == nil && sources.Performance == nil {
		return nil, fmt.Errorf("at least one of signal or performance source is required")
	}
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		sources:          sources,
		clock:            time.Now,
		logger:           logger.NewResearchLogger(log),
		fetchConcurrency: DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// weekInput is the prefetched data for one week
type weekInput struct {
	open        time.Time
	performance []models.WeeklyPerformance
	positions   []Position
	changes     map[string]float64
}

// runParams are the resolved numeric inputs of a run
type runParams struct {
	equity   float64
	sizing   SizingParams
	stopLoss float64
	friction float64
	trailing *models.Trailing
}

func resolveParams(cfg models.ResearchConfig) runParams {
	p := runParams{
		equity: DefaultStartingEquity,
	}
	if cfg.Risk.StartingEquity != nil {
		p.equity = *cfg.Risk.StartingEquity
	}
	riskPerTrade := DefaultRiskPerTrade
	if cfg.Risk.RiskPerTrade != nil {
		riskPerTrade = *cfg.Risk.RiskPerTrade
	}
	if cfg.Risk.StopLoss != nil {
		p.stopLoss = cfg.Risk.StopLoss.Value
	}

	var slippage, commission float64
	if cfg.Realism.SlippageBps != nil {
		slippage = *cfg.Realism.SlippageBps
	}
	if cfg.Realism.CommissionBps != nil {
		commission = *cfg.Realism.CommissionBps
	}
	p.friction = FrictionFraction(slippage, commission)

	p.sizing = SizingParams{
		Equity:       p.equity,
		Leverage:     cfg.Risk.Leverage,
		Policy:       cfg.Risk.Sizing,
		RiskPerTrade: riskPerTrade,
		StopLoss:     p.stopLoss,
	}

	if t := cfg.Risk.Trailing; t != nil {
		trailing := *t
		if trailing.Adaptive {
			// unresolved adaptive configs fall back to the default profile
			profile := ComputeTrailProfile(DefaultTrailProfileInputs(), time.Time{})
			trailing = models.Trailing{StartPct: profile.StartPct, OffsetPct: profile.OffsetPct}
		}
		p.trailing = &trailing
	}
	return p
}

// Simulate runs the config over its date range and builds the result
func (e *Engine) Simulate(ctx context.Context, cfg models.ResearchConfig) (*models.ResearchRunResult, error) {
	if err := Check(cfg); err != nil {
		return nil, err
	}
	if err := e.checkSources(cfg.Mode); err != nil {
		return nil, err
	}

	hash, err := HashConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}
	from, err := weeks.Parse(cfg.DateRange.From)
	if err != nil {
		return nil, err
	}
	to, err := weeks.Parse(cfg.DateRange.To)
	if err != nil {
		return nil, err
	}

	opens := weeks.Enumerate(from, to)
	inputs, err := e.prefetch(ctx, cfg, opens)
	if err != nil {
		return nil, err
	}

	params := resolveParams(cfg)
	state := newResearchState(params.equity, params.trailing, cfg.Models)
	for _, in := range inputs {
		var outcome WeekOutcome
		if cfg.Mode == models.ModeAsTradedReplay {
			outcome = replayWeek(in, cfg)
		} else {
			outcome = simulateWeek(in, cfg, params)
		}
		state.record(outcome)
		e.logger.LogWeekSimulated(weeks.Format(in.open), outcome.ReturnPct, state.equityPct, outcome.Trades, outcome.PricedTrades)
	}

	return &models.ResearchRunResult{
		RunID:       RunIDForHash(hash),
		ConfigHash:  hash,
		GeneratedAt: e.clock().UTC().Format(time.RFC3339),
		Assumptions: assumptionsFor(cfg, params),
		Headline:    state.headline(),
		Risk:        state.riskSummary(),
		EquityCurve: nonNilCurve(state.curve),
		Weekly:      nonNilWeekly(state.weekly),
		ByModel:     state.byModel(),
		BySymbol:    state.bySymbol(),
	}, nil
}

// RunIDForHash is the deterministic engine-assigned run id.
// Stores replace it with the persisted row id.
func RunIDForHash(hash string) string {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return "run-" + hash
}

func (e *Engine) checkSources(mode models.ResearchMode) error {
	switch mode {
	case models.ModeAsTradedReplay:
		if e.sources.Performance == nil {
			return fmt.Errorf("%w: %s needs a performance source", ErrSourceUnavailable, mode)
		}
	case models.ModeHypotheticalSim:
		if e.sources.Signals == nil || e.sources.Prices == nil {
			return fmt.Errorf("%w: %s needs signal and price sources", ErrSourceUnavailable, mode)
		}
	}
	return nil
}

// prefetch loads week data with bounded parallelism; results keep week order
func (e *Engine) prefetch(ctx context.Context, cfg models.ResearchConfig, opens []time.Time) ([]weekInput, error) {
	inputs := make([]weekInput, len(opens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchConcurrency)

	for i, open := range opens {
		g.Go(func() error {
			in, err := e.fetchWeek(gctx, cfg, open)
			if err != nil {
				return fmt.Errorf("fetch week %s: %w", weeks.Format(open), err)
			}
			inputs[i] = in
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func (e *Engine) fetchWeek(ctx context.Context, cfg models.ResearchConfig, open time.Time) (weekInput, error) {
	in := weekInput{open: open}

	if cfg.Mode == models.ModeAsTradedReplay {
		rows, err := e.sources.Performance.GetWeeklyReturns(ctx, open)
		if err != nil && !datasource.IsAbsent(err) {
			return in, err
		}
		in.performance = rows
		return in, nil
	}

	legs, err := e.sources.Signals.GetSignals(ctx, open, cfg.Universe.AssetClasses, cfg.Universe.Symbols)
	if err != nil && !datasource.IsAbsent(err) {
		return in, err
	}
	in.positions = BuildPositions(legs, cfg)
	if len(in.positions) == 0 {
		return in, nil
	}

	changes, err := e.sources.Prices.GetWeeklyChanges(ctx, open, PositionSymbols(in.positions))
	if err != nil && !datasource.IsAbsent(err) {
		return in, err
	}
	in.changes = changes
	return in, nil
}

// replayWeek sums realized performance rows for the configured models and asset classes.
// With a symbol filter, rows without a per-pair breakdown cannot be narrowed
// and are skipped. Margin is estimated as one full-allocation leg per priced
// trade, capped at the margin buffer.
func replayWeek(in weekInput, cfg models.ResearchConfig) WeekOutcome {
	out := newWeekOutcome(in.open)
	modelSet := make(map[models.StrategyModel]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		modelSet[m] = true
	}
	classSet := make(map[models.AssetClass]bool, len(cfg.Universe.AssetClasses))
	for _, ac := range cfg.Universe.AssetClasses {
		classSet[ac] = true
	}
	symbolSet := make(map[string]bool, len(cfg.Universe.Symbols))
	for _, s := range cfg.Universe.Symbols {
		symbolSet[s] = true
	}

	for _, row := range in.performance {
		if !modelSet[row.Model] || !classSet[row.AssetClass] {
			continue
		}

		contribution, trades, priced := row.Percent, row.Total, row.Priced
		filterPairs := len(symbolSet) > 0
		if filterPairs && len(row.Returns) == 0 {
			continue
		}
		if filterPairs {
			contribution, trades = 0, 0
		}
		for _, pr := range row.Returns {
			if filterPairs && !symbolSet[pr.Pair] {
				continue
			}
			if filterPairs {
				contribution += pr.Percent
				trades++
			}
			out.addSymbol(pr.Pair, pr.Percent)
		}
		if filterPairs {
			priced = trades
		}

		out.ReturnPct += contribution
		out.Trades += trades
		out.PricedTrades += priced
		out.addModel(row.Model, contribution, trades)
		if cfg.Risk.Leverage > 0 {
			out.MarginUsedPct += float64(priced) * 100 / EffectiveLeverage(row.AssetClass, cfg.Risk.Leverage)
		}
	}
	if limit := (1 - cfg.Risk.MarginBuffer) * 100; out.MarginUsedPct > limit {
		out.MarginUsedPct = limit
	}
	return out
}

// simulateWeek sizes, rations and prices the week's positions
func simulateWeek(in weekInput, cfg models.ResearchConfig, p runParams) WeekOutcome {
	out := newWeekOutcome(in.open)
	if len(in.positions) == 0 {
		return out
	}

	sized := make([]SizedLeg, len(in.positions))
	for i, pos := range in.positions {
		sized[i] = SizeLeg(pos, p.sizing)
	}
	sized = RationLegs(sized, p.equity, cfg.Risk.MarginBuffer, cfg.Risk.Leverage, cfg.Realism.AllowPartialFills)
	out.MarginUsedPct = MarginUsedPct(sized, p.equity)

	for _, leg := range sized {
		out.Trades++
		move, hasPrice := in.changes[leg.Symbol]
		priced := leg.Filled && (hasPrice || leg.Direction == models.DirectionNeutral)

		ret := 0.0
		if priced {
			out.PricedTrades++
			ret = LegReturnPct(leg, move, p.stopLoss, p.friction, p.equity)
		}
		out.ReturnPct += ret
		out.addSymbol(leg.Symbol, ret)

		share := ret / float64(len(leg.Models))
		for _, m := range leg.Models {
			out.addModel(m, share, 1)
		}
	}
	return out
}

func assumptionsFor(cfg models.ResearchConfig, p runParams) models.Assumptions {
	notes := []string{
		"Positions open at the canonical week open (Sunday 19:00 America/New_York) and close at the next week open.",
		fmt.Sprintf("Weekly returns accumulate additively in percent of a fixed %g USD starting equity.", p.equity),
	}
	if cfg.Mode == models.ModeAsTradedReplay {
		notes = append(notes,
			"As-traded replay sums realized weekly performance; no additional frictions are applied.",
			fmt.Sprintf("Replay margin is an estimate of one full-allocation leg per priced trade at %gx leverage, capped at %g%% of equity.", cfg.Risk.Leverage, roundPct((1-cfg.Risk.MarginBuffer)*100)),
		)
		if len(cfg.Universe.Symbols) > 0 {
			notes = append(notes, "Performance rows without a per-symbol breakdown are excluded under a symbol filter.")
		}
	} else {
		allocation := "each symbol gets the full allocation"
		if cfg.Execution.LegMode != models.LegModeNetOnly {
			allocation = "each model leg gets an equal share of the per-symbol allocation"
		}
		notes = append(notes,
			fmt.Sprintf("Legs are sized with the %s policy at up to %gx leverage under a %g margin buffer; %s.", cfg.Risk.Sizing, cfg.Risk.Leverage, cfg.Risk.MarginBuffer, allocation),
			fmt.Sprintf("Frictions of %g bps are charged on filled notional.", p.friction*10000),
		)
		if p.stopLoss > 0 {
			notes = append(notes, fmt.Sprintf("Adverse weekly moves are capped at a %g stop-loss.", p.stopLoss))
		}
	}
	if p.trailing != nil {
		notes = append(notes, fmt.Sprintf("Trailing lock starts at %g%% peak equity with a %g%% offset.", p.trailing.StartPct, p.trailing.OffsetPct))
	}
	return models.Assumptions{DataGranularity: dataGranularityWeekly, Notes: notes}
}

func nonNilCurve(in []models.EquityPoint) []models.EquityPoint {
	if in == nil {
		return []models.EquityPoint{}
	}
	return in
}

func nonNilWeekly(in []models.WeeklyRow) []models.WeeklyRow {
	if in == nil {
		return []models.WeeklyRow{}
	}
	return in
}
