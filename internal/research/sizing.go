package research

import (
	"math"

	"github.com/yourusername/limni-research/internal/models"
)

// AssetConvention is the broker lot convention for an asset class
type AssetConvention struct {
	NotionalPerUnit float64
	MaxLeverage     float64
}

var conventions = map[models.AssetClass]AssetConvention{
	models.AssetClassFX:          {NotionalPerUnit: 1000, MaxLeverage: 50},
	models.AssetClassIndices:     {NotionalPerUnit: 100, MaxLeverage: 20},
	models.AssetClassCommodities: {NotionalPerUnit: 100, MaxLeverage: 20},
	models.AssetClassCrypto:      {NotionalPerUnit: 10, MaxLeverage: 10},
}

// ConventionFor returns the lot convention of an asset class.
// Unknown classes get the most conservative convention.
func ConventionFor(assetClass models.AssetClass) AssetConvention {
	if c, ok := conventions[assetClass]; ok {
		return c
	}
	return conventions[models.AssetClassCrypto]
}

// EffectiveLeverage caps the requested leverage at the asset class maximum
func EffectiveLeverage(assetClass models.AssetClass, leverage float64) float64 {
	return math.Min(leverage, ConventionFor(assetClass).MaxLeverage)
}

// SizingParams carries the account-level inputs for sizing one leg
type SizingParams struct {
	Equity       float64
	Leverage     float64
	Policy       models.SizingPolicy
	RiskPerTrade float64
	// StopLoss is the fractional stop distance, zero when no stop is configured
	StopLoss float64
}

// SizedLeg is a position with its filled units and margin
type SizedLeg struct {
	Position
	Units       int64
	NotionalUSD float64
	MarginUSD   float64
	Filled      bool
}

// SizeLeg converts a position into whole units under the sizing policy.
// Units are truncated, never rounded up; a leg smaller than one unit is unfilled.
// Neutral positions are filled with zero exposure. A zero Weight sizes
// against the whole allocation.
func SizeLeg(pos Position, p SizingParams) SizedLeg {
	sized := SizedLeg{Position: pos}
	if pos.Direction == models.DirectionNeutral {
		sized.Filled = true
		return sized
	}
	if p.Equity <= 0 || p.Leverage <= 0 {
		return sized
	}

	conv := ConventionFor(pos.AssetClass)
	target := p.Equity
	if p.Policy == models.SizingFixedRisk && p.StopLoss > 0 && p.RiskPerTrade > 0 {
		target = p.Equity * p.RiskPerTrade / p.StopLoss
	}
	if pos.Weight > 0 {
		target *= pos.Weight
	}

	units := int64(math.Floor(target / conv.NotionalPerUnit))
	if units < 1 {
		return sized
	}
	sized.setUnits(units, p.Leverage)
	return sized
}

func (s *SizedLeg) setUnits(units int64, leverage float64) {
	conv := ConventionFor(s.AssetClass)
	s.Units = units
	s.NotionalUSD = float64(units) * conv.NotionalPerUnit
	s.MarginUSD = s.NotionalUSD / EffectiveLeverage(s.AssetClass, leverage)
	s.Filled = units > 0
}

func (s *SizedLeg) unfill() {
	s.Units = 0
	s.NotionalUSD = 0
	s.MarginUSD = 0
	s.Filled = false
}

// TotalMargin sums the margin of filled legs
func TotalMargin(legs []SizedLeg) float64 {
	total := 0.0
	for _, leg := range legs {
		if leg.Filled {
			total += leg.MarginUSD
		}
	}
	return total
}

// RationLegs enforces the margin cap (1 - marginBuffer) * equity.
// With partial fills every leg is scaled down proportionally and truncated;
// otherwise legs are dropped from the tail of the sequence until the cap holds.
// The input slice is not modified.
func RationLegs(legs []SizedLeg, equity, marginBuffer, leverage float64, allowPartialFills bool) []SizedLeg {
	out := append([]SizedLeg(nil), legs...)
	capUSD := (1 - marginBuffer) * equity
	total := TotalMargin(out)
	if total <= capUSD {
		return out
	}

	if allowPartialFills {
		scale := capUSD / total
		for i := range out {
			if !out[i].Filled || out[i].Units == 0 {
				continue
			}
			units := int64(math.Floor(float64(out[i].Units) * scale))
			if units < 1 {
				out[i].unfill()
				continue
			}
			out[i].setUnits(units, leverage)
		}
		return out
	}

	for i := len(out) - 1; i >= 0 && total > capUSD; i-- {
		if !out[i].Filled || out[i].MarginUSD == 0 {
			continue
		}
		total -= out[i].MarginUSD
		out[i].unfill()
	}
	return out
}

// MarginUsedPct is filled margin as a percent of equity
func MarginUsedPct(legs []SizedLeg, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	return TotalMargin(legs) / equity * 100
}

// FrictionFraction converts slippage and commission basis points to a fraction of notional
func FrictionFraction(slippageBps, commissionBps float64) float64 {
	return (slippageBps + commissionBps) / 10000
}

// LegReturnPct is the leg's contribution to account equity in percent.
// movePct is the instrument's weekly percent change; the stop caps the
// adverse move at -stopLoss and frictions apply to filled notional.
func LegReturnPct(leg SizedLeg, movePct, stopLoss, friction, equity float64) float64 {
	if !leg.Filled || leg.NotionalUSD == 0 || equity <= 0 {
		return 0
	}
	gross := leg.Direction.Sign() * movePct / 100
	if stopLoss > 0 && gross < -stopLoss {
		gross = -stopLoss
	}
	return leg.NotionalUSD * (gross - friction) / equity * 100
}
