package api

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/limni-research/internal/models"
)

func TestDecodeConfig_BareAndWrapped(t *testing.T) {
	bare := `{"mode":"hypothetical_sim","provider":"oanda","dateRange":{"from":"2026-01-05T00:00:00Z","to":"2026-01-19T00:00:00Z"},"universe":{"assetClasses":["fx"]},"models":["blended"],"execution":{"legMode":"full_legs","order":"leg_sequence"},"risk":{"marginBuffer":0.1,"leverage":50,"sizing":"broker_native"},"realism":{"allowPartialFills":true}}`

	a, err := DecodeConfig([]byte(bare))
	require.NoError(t, err)
	b, err := DecodeConfig([]byte(`{"config":` + bare + `}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, models.ModeHypotheticalSim, a.Mode)
	assert.Equal(t, []models.StrategyModel{models.ModelBlended}, a.Models)
	assert.Equal(t, []models.AssetClass{models.AssetClassFX}, a.Universe.AssetClasses)
	assert.Nil(t, a.Universe.Symbols)
}

func TestDecodeConfig_CoercesLists(t *testing.T) {
	body := `{"mode":"hypothetical_sim","provider":"oanda","models":"blended, dealer,blended","universe":{"assetClasses":"fx","symbols":"eurusd, GBPUSD ,eurusd"}}`

	cfg, err := DecodeConfig([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, []models.StrategyModel{models.ModelBlended, models.ModelDealer}, cfg.Models)
	assert.Equal(t, []models.AssetClass{models.AssetClassFX}, cfg.Universe.AssetClasses)
	assert.Equal(t, []string{"EURUSD", "GBPUSD"}, cfg.Universe.Symbols)
}

func TestDecodeConfig_EmptySymbolsStaysEmpty(t *testing.T) {
	cfg, err := DecodeConfig([]byte(`{"mode":"hypothetical_sim","universe":{"assetClasses":["fx"],"symbols":[]}}`))
	require.NoError(t, err)
	assert.NotNil(t, cfg.Universe.Symbols)
	assert.Empty(t, cfg.Universe.Symbols)
}

func TestDecodeConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"empty object", `{}`},
		{"empty wrapper", `{"config":{}}`},
		{"wrong type", `{"mode":"hypothetical_sim","risk":{"leverage":"high"}}`},
		{"numeric models", `{"mode":"hypothetical_sim","models":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConfig([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConfigFromQuery_Defaults(t *testing.T) {
	cfg := ConfigFromQuery(url.Values{}, DefaultConfig())

	assert.Equal(t, models.ModeHypotheticalSim, cfg.Mode)
	assert.Equal(t, models.ProviderOanda, cfg.Provider)
	assert.Equal(t, defaultFrom, cfg.DateRange.From)
	assert.Equal(t, defaultTo, cfg.DateRange.To)
	assert.Equal(t, []models.StrategyModel{models.ModelSentiment}, cfg.Models)
	assert.Equal(t, []string{}, cfg.Universe.Symbols)
	assert.Nil(t, cfg.Risk.StopLoss)
	assert.Nil(t, cfg.Risk.Trailing)
	require.NotNil(t, cfg.Realism.SlippageBps)
	assert.Equal(t, 2.0, *cfg.Realism.SlippageBps)
	assert.True(t, cfg.Realism.AllowPartialFills)
}

func TestConfigFromQuery_Overrides(t *testing.T) {
	q := url.Values{}
	q.Set("mode", "as_traded_replay")
	q.Set("provider", "bitget")
	q.Set("accountKey", "acct-1")
	q.Set("from", "2026-01-05")
	q.Set("to", "2026-02-02T00:00:00Z")
	q.Set("models", "dealer,bogus,blended,dealer")
	q.Set("assets", "fx,crypto")
	q.Set("symbols", "eurusd,btcusd")
	q.Set("legMode", "full_legs")
	q.Set("includeNeutral", "1")
	q.Set("order", "leg_sequence")
	q.Set("leverage", "20")
	q.Set("marginBuffer", "NaN")
	q.Set("sizing", "fixed_risk")
	q.Set("stop_enabled", "true")
	q.Set("stopPct", "0.02")
	q.Set("trail_enabled", "1")
	q.Set("trailAdaptive", "true")
	q.Set("slippageBps", "0")
	q.Set("allowPartialFills", "false")

	cfg := ConfigFromQuery(q, DefaultConfig())

	assert.Equal(t, models.ModeAsTradedReplay, cfg.Mode)
	assert.Equal(t, models.ProviderBitget, cfg.Provider)
	assert.Equal(t, "acct-1", cfg.AccountKey)
	assert.Equal(t, "2026-01-05T00:00:00Z", cfg.DateRange.From)
	assert.Equal(t, "2026-02-02T00:00:00Z", cfg.DateRange.To)
	assert.Equal(t, []models.StrategyModel{models.ModelDealer, models.ModelBlended}, cfg.Models)
	assert.Equal(t, []models.AssetClass{models.AssetClassFX, models.AssetClassCrypto}, cfg.Universe.AssetClasses)
	assert.Equal(t, []string{"EURUSD", "BTCUSD"}, cfg.Universe.Symbols)
	assert.Equal(t, models.LegModeFull, cfg.Execution.LegMode)
	assert.True(t, cfg.Execution.IncludeNeutral)
	assert.Equal(t, models.OrderLegSequence, cfg.Execution.Order)
	assert.Equal(t, 20.0, cfg.Risk.Leverage)
	assert.Equal(t, 0.1, cfg.Risk.MarginBuffer)
	assert.Equal(t, models.SizingFixedRisk, cfg.Risk.Sizing)
	require.NotNil(t, cfg.Risk.StopLoss)
	assert.Equal(t, 0.02, cfg.Risk.StopLoss.Value)
	require.NotNil(t, cfg.Risk.Trailing)
	assert.Equal(t, 0.2, cfg.Risk.Trailing.StartPct)
	assert.Equal(t, 0.1, cfg.Risk.Trailing.OffsetPct)
	assert.True(t, cfg.Risk.Trailing.Adaptive)
	require.NotNil(t, cfg.Realism.SlippageBps)
	assert.Equal(t, 0.0, *cfg.Realism.SlippageBps)
	assert.False(t, cfg.Realism.AllowPartialFills)
}

func TestConfigFromQuery_InvalidValuesFallBack(t *testing.T) {
	q := url.Values{}
	q.Set("provider", "binance")
	q.Set("from", "last week")
	q.Set("models", "bogus")
	q.Set("leverage", "lots")

	cfg := ConfigFromQuery(q, DefaultConfig())

	assert.Equal(t, models.ProviderOanda, cfg.Provider)
	assert.Equal(t, defaultFrom, cfg.DateRange.From)
	assert.Equal(t, []models.StrategyModel{models.ModelSentiment}, cfg.Models)
	assert.Equal(t, 50.0, cfg.Risk.Leverage)
}

func TestConfigFromQuery_DoesNotMutateBase(t *testing.T) {
	base := DefaultConfig()
	q := url.Values{}
	q.Set("slippageBps", "9")
	q.Set("models", "dealer")

	_ = ConfigFromQuery(q, base)

	assert.Equal(t, 2.0, *base.Realism.SlippageBps)
	assert.Equal(t, []models.StrategyModel{models.ModelSentiment}, base.Models)
}
