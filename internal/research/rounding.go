package research

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	pctPlaces = 4
	usdPlaces = 2
)

func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	out := decimal.NewFromFloat(v).Round(places).InexactFloat64()
	if out == 0 {
		// normalize negative zero
		return 0
	}
	return out
}

func roundPct(v float64) float64 { return roundTo(v, pctPlaces) }

func roundUSD(v float64) float64 { return roundTo(v, usdPlaces) }
