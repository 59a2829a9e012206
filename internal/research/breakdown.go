package research

import (
	"sort"

	"github.com/yourusername/limni-research/internal/models"
)

// headline summarizes the whole run
func (s *researchState) headline() models.Headline {
	h := models.Headline{
		TotalReturnPct:      roundPct(s.equityPct),
		StaticDrawdownPct:   roundPct(s.drawdown.static),
		TrailingDrawdownPct: roundPct(s.drawdown.trailing),
		Trades:              s.trades,
		PricedTrades:        s.pricedTrades,
	}
	if n := len(s.weekly); n > 0 {
		h.WinRatePct = roundPct(float64(s.winningWeeks) / float64(n) * 100)
	}
	return h
}

func (s *researchState) riskSummary() models.RiskSummary {
	r := models.RiskSummary{
		PeakMarginUsedPct: roundPct(s.marginPeak),
		FillRatePct:       100,
	}
	if n := len(s.weekly); n > 0 {
		r.AvgMarginUsedPct = roundPct(s.marginSum / float64(n))
	}
	if s.trades > 0 {
		r.FillRatePct = roundPct(float64(s.pricedTrades) / float64(s.trades) * 100)
	}
	return r
}

// byModel lists every configured model in configured order
func (s *researchState) byModel() []models.ModelBreakdown {
	out := make([]models.ModelBreakdown, 0, len(s.modelOrder))
	for _, m := range s.modelOrder {
		totals := s.models[m]
		out = append(out, models.ModelBreakdown{
			Model:               m,
			ReturnPct:           roundPct(totals.returnPct),
			StaticDrawdownPct:   roundPct(totals.drawdown.static),
			TrailingDrawdownPct: roundPct(totals.drawdown.trailing),
			Trades:              totals.trades,
		})
	}
	return out
}

// bySymbol lists traded symbols alphabetically
func (s *researchState) bySymbol() []models.SymbolBreakdown {
	symbols := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]models.SymbolBreakdown, 0, len(symbols))
	for _, sym := range symbols {
		totals := s.symbols[sym]
		row := models.SymbolBreakdown{
			Symbol:    sym,
			ReturnPct: roundPct(totals.returnPct),
			Trades:    totals.trades,
		}
		if totals.trades > 0 {
			row.WinRatePct = roundPct(float64(totals.wins) / float64(totals.trades) * 100)
		}
		out = append(out, row)
	}
	return out
}
