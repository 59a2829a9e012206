package research

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourusername/limni-research/internal/models"
)

func fxPosition(symbol string, dir models.Direction) Position {
	return Position{Symbol: symbol, AssetClass: models.AssetClassFX, Direction: dir, Models: []models.StrategyModel{models.ModelBlended}}
}

func TestSizeLegBrokerNative(t *testing.T) {
	sized := SizeLeg(fxPosition("EURUSD", models.DirectionLong), SizingParams{
		Equity:   100000,
		Leverage: 30,
		Policy:   models.SizingBrokerNative,
	})

	assert.True(t, sized.Filled)
	assert.Equal(t, int64(100), sized.Units)
	assert.Equal(t, 100000.0, sized.NotionalUSD)
	assert.InDelta(t, 3333.3333, sized.MarginUSD, 0.001)
}

func TestSizeLegTruncatesUnits(t *testing.T) {
	sized := SizeLeg(fxPosition("EURUSD", models.DirectionLong), SizingParams{
		Equity:   12999,
		Leverage: 50,
		Policy:   models.SizingBrokerNative,
	})

	assert.Equal(t, int64(12), sized.Units)
	assert.Equal(t, 12000.0, sized.NotionalUSD)
}

func TestSizeLegScalesByWeight(t *testing.T) {
	pos := fxPosition("EURUSD", models.DirectionLong)
	pos.Weight = 1.0 / 3

	sized := SizeLeg(pos, SizingParams{
		Equity:   100000,
		Leverage: 50,
		Policy:   models.SizingBrokerNative,
	})

	assert.Equal(t, int64(33), sized.Units)
	assert.Equal(t, 33000.0, sized.NotionalUSD)
	assert.Equal(t, 660.0, sized.MarginUSD)
}

func TestSizeLegCapsLeverageAtAssetClassMax(t *testing.T) {
	pos := Position{Symbol: "BTCUSD", AssetClass: models.AssetClassCrypto, Direction: models.DirectionLong, Models: []models.StrategyModel{models.ModelBlended}}
	sized := SizeLeg(pos, SizingParams{Equity: 1000, Leverage: 100, Policy: models.SizingBrokerNative})

	assert.Equal(t, int64(100), sized.Units)
	assert.Equal(t, 100.0, sized.MarginUSD)
}

func TestSizeLegFixedRisk(t *testing.T) {
	params := SizingParams{
		Equity:       100000,
		Leverage:     50,
		Policy:       models.SizingFixedRisk,
		RiskPerTrade: 0.01,
		StopLoss:     0.02,
	}

	sized := SizeLeg(fxPosition("EURUSD", models.DirectionShort), params)

	assert.Equal(t, int64(50), sized.Units)
	assert.Equal(t, 50000.0, sized.NotionalUSD)
	assert.Equal(t, 1000.0, sized.MarginUSD)
}

func TestSizeLegFixedRiskWithoutStopFallsBack(t *testing.T) {
	params := SizingParams{Equity: 100000, Leverage: 50, Policy: models.SizingFixedRisk, RiskPerTrade: 0.01}

	sized := SizeLeg(fxPosition("EURUSD", models.DirectionLong), params)

	assert.Equal(t, int64(100), sized.Units)
}

func TestSizeLegBelowOneUnitIsUnfilled(t *testing.T) {
	sized := SizeLeg(fxPosition("EURUSD", models.DirectionLong), SizingParams{Equity: 999, Leverage: 50, Policy: models.SizingBrokerNative})

	assert.False(t, sized.Filled)
	assert.Zero(t, sized.MarginUSD)
}

func TestSizeLegNeutralHasNoExposure(t *testing.T) {
	sized := SizeLeg(fxPosition("EURUSD", models.DirectionNeutral), SizingParams{Equity: 100000, Leverage: 50, Policy: models.SizingBrokerNative})

	assert.True(t, sized.Filled)
	assert.Zero(t, sized.NotionalUSD)
}

func threeFxLegs() []SizedLeg {
	params := SizingParams{Equity: 100000, Leverage: 50, Policy: models.SizingBrokerNative}
	return []SizedLeg{
		SizeLeg(fxPosition("EURUSD", models.DirectionLong), params),
		SizeLeg(fxPosition("GBPUSD", models.DirectionLong), params),
		SizeLeg(fxPosition("USDJPY", models.DirectionShort), params),
	}
}

func TestRationLegsUnderCapIsUnchanged(t *testing.T) {
	legs := threeFxLegs()

	out := RationLegs(legs, 100000, 0.1, 50, false)

	assert.Equal(t, legs, out)
	assert.InDelta(t, 6.0, MarginUsedPct(out, 100000), 1e-9)
}

func TestRationLegsDropsFromTail(t *testing.T) {
	legs := threeFxLegs()

	out := RationLegs(legs, 100000, 0.95, 50, false)

	assert.True(t, out[0].Filled)
	assert.True(t, out[1].Filled)
	assert.False(t, out[2].Filled)
	assert.LessOrEqual(t, TotalMargin(out), 5000.0)
	assert.True(t, legs[2].Filled, "input must not be modified")
}

func TestRationLegsPartialFills(t *testing.T) {
	out := RationLegs(threeFxLegs(), 100000, 0.95, 50, true)

	for _, leg := range out {
		assert.True(t, leg.Filled)
		assert.Equal(t, int64(83), leg.Units)
		assert.Equal(t, 1660.0, leg.MarginUSD)
	}
	assert.LessOrEqual(t, TotalMargin(out), 5000.0)
}

func TestRationLegsPartialFillsUnfillTinyLegs(t *testing.T) {
	params := SizingParams{Equity: 1000, Leverage: 50, Policy: models.SizingBrokerNative}
	legs := []SizedLeg{SizeLeg(fxPosition("EURUSD", models.DirectionLong), params)}

	out := RationLegs(legs, 1000, 0.99, 50, true)

	assert.False(t, out[0].Filled)
}

func TestLegReturnPct(t *testing.T) {
	params := SizingParams{Equity: 100000, Leverage: 50, Policy: models.SizingBrokerNative}
	long := SizeLeg(fxPosition("EURUSD", models.DirectionLong), params)
	short := SizeLeg(fxPosition("EURUSD", models.DirectionShort), params)

	tests := []struct {
		name     string
		leg      SizedLeg
		move     float64
		stop     float64
		friction float64
		want     float64
	}{
		{"long gain", long, 1.0, 0, 0, 1.0},
		{"short gain", short, -0.5, 0, 0, 0.5},
		{"stop caps adverse move", short, 5.0, 0.02, 0, -2.0},
		{"stop ignores favourable move", long, 5.0, 0.02, 0, 5.0},
		{"frictions reduce return", long, 1.0, 0, FrictionFraction(1, 1), 0.98},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, LegReturnPct(tt.leg, tt.move, tt.stop, tt.friction, 100000), 1e-9)
		})
	}
}
