package research

import (
	"sort"

	"github.com/yourusername/limni-research/internal/models"
)

// Position is a directional exposure on one symbol attributed to one or
// more models. In full_legs mode each position has exactly one model.
type Position struct {
	Symbol     string
	AssetClass models.AssetClass
	Direction  models.Direction
	Models     []models.StrategyModel
	// Weight is the share of the per-symbol allocation this position sizes
	// against. A full_legs leg gets 1/len(models); a net position gets 1.
	Weight float64
}

// BuildPositions applies model/universe filters, leg mode, the neutral
// filter and execution order to a week's raw legs
func BuildPositions(legs []models.Leg, cfg models.ResearchConfig) []Position {
	filtered := filterLegs(legs, cfg)

	var positions []Position
	if cfg.Execution.LegMode == models.LegModeNetOnly {
		positions = netPositions(filtered)
	} else {
		weight := 1.0
		if n := len(modelRank(cfg.Models)); n > 0 {
			weight = 1 / float64(n)
		}
		positions = make([]Position, 0, len(filtered))
		for _, leg := range filtered {
			positions = append(positions, Position{
				Symbol:     leg.Symbol,
				AssetClass: leg.AssetClass,
				Direction:  leg.Direction,
				Models:     []models.StrategyModel{leg.Model},
				Weight:     weight,
			})
		}
	}

	if !cfg.Execution.IncludeNeutral {
		kept := positions[:0]
		for _, p := range positions {
			if p.Direction != models.DirectionNeutral {
				kept = append(kept, p)
			}
		}
		positions = kept
	}

	if cfg.Execution.Order == models.OrderGroupedBySymbol {
		rank := modelRank(cfg.Models)
		sort.SliceStable(positions, func(i, j int) bool {
			if positions[i].Symbol != positions[j].Symbol {
				return positions[i].Symbol < positions[j].Symbol
			}
			return rank[positions[i].Models[0]] < rank[positions[j].Models[0]]
		})
	}
	return positions
}

func modelRank(configured []models.StrategyModel) map[models.StrategyModel]int {
	rank := make(map[models.StrategyModel]int, len(configured))
	for i, m := range configured {
		if _, ok := rank[m]; !ok {
			rank[m] = i
		}
	}
	return rank
}

func filterLegs(legs []models.Leg, cfg models.ResearchConfig) []models.Leg {
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

	out := make([]models.Leg, 0, len(legs))
	for _, leg := range legs {
		if !modelSet[leg.Model] || !classSet[leg.AssetClass] {
			continue
		}
		if len(symbolSet) > 0 && !symbolSet[leg.Symbol] {
			continue
		}
		out = append(out, leg)
	}
	return out
}

// netPositions collapses legs per symbol to the sign of the summed votes.
// The net position is attributed to the models that agree with it; a flat
// net is NEUTRAL and attributed to every contributing model.
func netPositions(legs []models.Leg) []Position {
	type group struct {
		assetClass models.AssetClass
		votes      float64
		legs       []models.Leg
	}
	var order []string
	groups := make(map[string]*group)
	for _, leg := range legs {
		g, ok := groups[leg.Symbol]
		if !ok {
			g = &group{assetClass: leg.AssetClass}
			groups[leg.Symbol] = g
			order = append(order, leg.Symbol)
		}
		g.votes += leg.Direction.Sign()
		g.legs = append(g.legs, leg)
	}

	out := make([]Position, 0, len(order))
	for _, symbol := range order {
		g := groups[symbol]
		dir := models.DirectionNeutral
		switch {
		case g.votes > 0:
			dir = models.DirectionLong
		case g.votes < 0:
			dir = models.DirectionShort
		}

		seen := make(map[models.StrategyModel]bool)
		var attributed []models.StrategyModel
		for _, leg := range g.legs {
			if dir != models.DirectionNeutral && leg.Direction != dir {
				continue
			}
			if !seen[leg.Model] {
				seen[leg.Model] = true
				attributed = append(attributed, leg.Model)
			}
		}
		out = append(out, Position{
			Symbol:     symbol,
			AssetClass: g.assetClass,
			Direction:  dir,
			Models:     attributed,
			Weight:     1,
		})
	}
	return out
}

// PositionSymbols returns the distinct symbols in first-seen order
func PositionSymbols(positions []Position) []string {
	seen := make(map[string]bool, len(positions))
	var out []string
	for _, p := range positions {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			out = append(out, p.Symbol)
		}
	}
	return out
}
