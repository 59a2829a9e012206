package research

import (
	"time"

	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

// WeekOutcome is the aggregated result of one simulated week
type WeekOutcome struct {
	WeekOpen      time.Time
	ReturnPct     float64
	Trades        int
	PricedTrades  int
	MarginUsedPct float64
	ByModel       map[models.StrategyModel]ModelWeek
	BySymbol      map[string]float64
	SymbolTrades  map[string]int
	SymbolWins    map[string]int
}

// ModelWeek is one model's share of a week
type ModelWeek struct {
	ReturnPct float64
	Trades    int
}

func newWeekOutcome(open time.Time) WeekOutcome {
	return WeekOutcome{
		WeekOpen:     open,
		ByModel:      make(map[models.StrategyModel]ModelWeek),
		BySymbol:     make(map[string]float64),
		SymbolTrades: make(map[string]int),
		SymbolWins:   make(map[string]int),
	}
}

func (w *WeekOutcome) addModel(model models.StrategyModel, returnPct float64, trades int) {
	mw := w.ByModel[model]
	mw.ReturnPct += returnPct
	mw.Trades += trades
	w.ByModel[model] = mw
}

func (w *WeekOutcome) addSymbol(symbol string, returnPct float64) {
	w.BySymbol[symbol] += returnPct
	w.SymbolTrades[symbol]++
	if returnPct > 0 {
		w.SymbolWins[symbol]++
	}
}

type modelTotals struct {
	returnPct float64
	trades    int
	drawdown  *drawdownTracker
}

type symbolTotals struct {
	returnPct float64
	trades    int
	wins      int
}

// researchState accumulates weekly outcomes into the result series.
// Percent returns accumulate additively against a fixed starting equity.
type researchState struct {
	startingEquity float64
	trailing       *models.Trailing

	equityPct    float64
	drawdown     *drawdownTracker
	trades       int
	pricedTrades int
	winningWeeks int
	marginSum    float64
	marginPeak   float64

	curve  []models.EquityPoint
	weekly []models.WeeklyRow

	modelOrder []models.StrategyModel
	models     map[models.StrategyModel]*modelTotals
	symbols    map[string]*symbolTotals
}

func newResearchState(startingEquity float64, trailing *models.Trailing, configured []models.StrategyModel) *researchState {
	s := &researchState{
		startingEquity: startingEquity,
		trailing:       trailing,
		drawdown:       newDrawdownTracker(0),
		models:         make(map[models.StrategyModel]*modelTotals, len(configured)),
		symbols:        make(map[string]*symbolTotals),
	}
	for _, m := range configured {
		if _, ok := s.models[m]; ok {
			continue
		}
		s.modelOrder = append(s.modelOrder, m)
		s.models[m] = &modelTotals{drawdown: newDrawdownTracker(0)}
	}
	return s
}

// record appends one week to the curve and running totals
func (s *researchState) record(w WeekOutcome) {
	s.equityPct += w.ReturnPct
	staticDepth, trailingDepth := s.drawdown.add(s.equityPct)

	s.trades += w.Trades
	s.pricedTrades += w.PricedTrades
	if w.ReturnPct > 0 {
		s.winningWeeks++
	}
	s.marginSum += w.MarginUsedPct
	s.marginPeak = max(s.marginPeak, w.MarginUsedPct)

	equityUSD := roundUSD(s.startingEquity * (1 + s.equityPct/100))
	baselineUSD := roundUSD(s.startingEquity)
	s.curve = append(s.curve, models.EquityPoint{
		TsUTC:             weeks.Format(w.WeekOpen),
		EquityPct:         roundPct(s.equityPct),
		EquityUSD:         &equityUSD,
		StaticBaselineUSD: &baselineUSD,
		LockPct:           s.lockPct(),
	})
	s.weekly = append(s.weekly, models.WeeklyRow{
		WeekOpenUTC:         weeks.Format(w.WeekOpen),
		ReturnPct:           roundPct(w.ReturnPct),
		StaticDrawdownPct:   roundPct(staticDepth),
		TrailingDrawdownPct: roundPct(trailingDepth),
	})

	// every configured model gets a point each week so its curve stays aligned
	for _, m := range s.modelOrder {
		totals := s.models[m]
		mw := w.ByModel[m]
		totals.returnPct += mw.ReturnPct
		totals.trades += mw.Trades
		totals.drawdown.add(totals.returnPct)
	}

	for symbol, ret := range w.BySymbol {
		totals, ok := s.symbols[symbol]
		if !ok {
			totals = &symbolTotals{}
			s.symbols[symbol] = totals
		}
		totals.returnPct += ret
		totals.trades += w.SymbolTrades[symbol]
		totals.wins += w.SymbolWins[symbol]
	}
}

func (s *researchState) lockPct() *float64 {
	if s.trailing == nil {
		return nil
	}
	if s.drawdown.peak < s.trailing.StartPct {
		return nil
	}
	lock := roundPct(s.drawdown.peak - s.trailing.OffsetPct)
	return &lock
}
