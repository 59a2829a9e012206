package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/limni-research/internal/models"
)

const (
	defaultFrom = "2025-01-06T00:00:00Z"
	defaultTo   = "2026-02-09T05:00:00Z"
)

var (
	allModels = []models.StrategyModel{
		models.ModelAntikythera, models.ModelBlended, models.ModelDealer, models.ModelCommercial, models.ModelSentiment,
	}
	allAssetClasses = []models.AssetClass{
		models.AssetClassFX, models.AssetClassIndices, models.AssetClassCommodities, models.AssetClassCrypto,
	}
	allProviders = []models.Provider{models.ProviderOanda, models.ProviderBitget, models.ProviderMT5}
)

// DecodeConfig reads a research config from a request body. The body may be
// the config itself or wrap it as {"config": {...}}. Array fields given as a
// single string or a comma-separated string are coerced to arrays.
func DecodeConfig(body []byte) (models.ResearchConfig, error) {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return models.ResearchConfig{}, fmt.Errorf("decode config payload: %w", err)
	}
	if inner, ok := raw["config"].(map[string]any); ok {
		raw = inner
	}
	if len(raw) == 0 {
		return models.ResearchConfig{}, fmt.Errorf("config payload is required")
	}

	raw["models"] = coerceList(raw["models"], false)
	if universe, ok := raw["universe"].(map[string]any); ok {
		universe["assetClasses"] = coerceList(universe["assetClasses"], false)
		if symbols, present := universe["symbols"]; present {
			universe["symbols"] = coerceList(symbols, true)
		}
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return models.ResearchConfig{}, fmt.Errorf("re-encode config payload: %w", err)
	}
	var cfg models.ResearchConfig
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return models.ResearchConfig{}, fmt.Errorf("decode config payload: %w", err)
	}
	return cfg, nil
}

// coerceList turns a string, comma string or array into a deduplicated
// string list; nil stays nil
func coerceList(v any, upper bool) any {
	var items []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		items = splitCSV(t)
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				// Leave non-string arrays for the decoder to reject.
				return v
			}
			items = append(items, strings.TrimSpace(s))
		}
	default:
		return v
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		if upper {
			item = strings.ToUpper(item)
		}
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultConfig is the base a query-string config is layered on
func DefaultConfig() models.ResearchConfig {
	slippage, commission := 2.0, 1.0
	return models.ResearchConfig{
		Mode:      models.ModeHypotheticalSim,
		Provider:  models.ProviderOanda,
		DateRange: models.DateRange{From: defaultFrom, To: defaultTo},
		Universe:  models.Universe{AssetClasses: []models.AssetClass{models.AssetClassFX}, Symbols: []string{}},
		Models:    []models.StrategyModel{models.ModelSentiment},
		Execution: models.Execution{LegMode: models.LegModeNetOnly, Order: models.OrderGroupedBySymbol},
		Risk:      models.Risk{MarginBuffer: 0.1, Leverage: 50, Sizing: models.SizingBrokerNative},
		Realism:   models.Realism{SlippageBps: &slippage, CommissionBps: &commission, AllowPartialFills: true},
	}
}

// ConfigFromQuery layers lab query parameters over base. Unknown enum
// values and unparsable numbers fall back to the base values.
func ConfigFromQuery(q url.Values, base models.ResearchConfig) models.ResearchConfig {
	cfg := base.Clone()

	if q.Get("mode") == string(models.ModeAsTradedReplay) {
		cfg.Mode = models.ModeAsTradedReplay
	}
	if p := models.Provider(q.Get("provider")); containsProvider(p) {
		cfg.Provider = p
	}
	if q.Has("accountKey") {
		cfg.AccountKey = q.Get("accountKey")
	}
	cfg.DateRange.From = isoOrFallback(q.Get("from"), base.DateRange.From)
	cfg.DateRange.To = isoOrFallback(q.Get("to"), base.DateRange.To)

	if selected := selectModels(splitCSV(q.Get("models"))); len(selected) > 0 {
		cfg.Models = selected
	}
	if selected := selectAssetClasses(splitCSV(q.Get("assets"))); len(selected) > 0 {
		cfg.Universe.AssetClasses = selected
	}
	symbols := []string{}
	for _, s := range splitCSV(q.Get("symbols")) {
		symbols = append(symbols, strings.ToUpper(s))
	}
	cfg.Universe.Symbols = symbols

	if q.Get("legMode") == string(models.LegModeFull) {
		cfg.Execution.LegMode = models.LegModeFull
	}
	cfg.Execution.IncludeNeutral = boolOr(q.Get("includeNeutral"), base.Execution.IncludeNeutral)
	if q.Get("order") == string(models.OrderLegSequence) {
		cfg.Execution.Order = models.OrderLegSequence
	}

	cfg.Risk.MarginBuffer = numberOr(q.Get("marginBuffer"), base.Risk.MarginBuffer)
	cfg.Risk.Leverage = numberOr(q.Get("leverage"), base.Risk.Leverage)
	if q.Get("sizing") == string(models.SizingFixedRisk) {
		cfg.Risk.Sizing = models.SizingFixedRisk
	}

	if boolOr(q.Get("stop_enabled"), base.Risk.StopLoss != nil) {
		value := 0.01
		if base.Risk.StopLoss != nil {
			value = base.Risk.StopLoss.Value
		}
		cfg.Risk.StopLoss = &models.StopLoss{Type: "pct", Value: numberOr(q.Get("stopPct"), value)}
	} else {
		cfg.Risk.StopLoss = nil
	}

	if boolOr(q.Get("trail_enabled"), base.Risk.Trailing != nil) {
		start, offset := 0.2, 0.1
		if base.Risk.Trailing != nil {
			start, offset = base.Risk.Trailing.StartPct, base.Risk.Trailing.OffsetPct
		}
		cfg.Risk.Trailing = &models.Trailing{
			StartPct:  numberOr(q.Get("trailStartPct"), start),
			OffsetPct: numberOr(q.Get("trailOffsetPct"), offset),
			Adaptive:  boolOr(q.Get("trailAdaptive"), false),
		}
	} else {
		cfg.Risk.Trailing = nil
	}

	if v, ok := parseNumber(q.Get("slippageBps")); ok {
		cfg.Realism.SlippageBps = &v
	}
	if v, ok := parseNumber(q.Get("commissionBps")); ok {
		cfg.Realism.CommissionBps = &v
	}
	cfg.Realism.AllowPartialFills = boolOr(q.Get("allowPartialFills"), base.Realism.AllowPartialFills)
	return cfg
}

func containsProvider(p models.Provider) bool {
	for _, known := range allProviders {
		if p == known {
			return true
		}
	}
	return false
}

func selectModels(values []string) []models.StrategyModel {
	var out []models.StrategyModel
	seen := map[models.StrategyModel]bool{}
	for _, v := range values {
		for _, m := range allModels {
			if models.StrategyModel(v) == m && !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

func selectAssetClasses(values []string) []models.AssetClass {
	var out []models.AssetClass
	seen := map[models.AssetClass]bool{}
	for _, v := range values {
		for _, ac := range allAssetClasses {
			if models.AssetClass(v) == ac && !seen[ac] {
				seen[ac] = true
				out = append(out, ac)
			}
		}
	}
	return out
}

func boolOr(v string, fallback bool) bool {
	switch v {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return fallback
	}
}

func parseNumber(v string) (float64, bool) {
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(v string, fallback float64) float64 {
	if f, ok := parseNumber(v); ok {
		return f
	}
	return fallback
}

func isoOrFallback(v, fallback string) string {
	if v == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339)
		}
	}
	return fallback
}
