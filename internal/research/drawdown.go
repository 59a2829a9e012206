package research

// StaticDrawdown is the deepest fall below the first point of a cumulative
// percent-equity curve. Zero for curves shorter than two points.
func StaticDrawdown(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	worst := 0.0
	for _, p := range curve[1:] {
		if d := curve[0] - p; d > worst {
			worst = d
		}
	}
	return worst
}

// TrailingDrawdown is the deepest fall below the running peak of a
// cumulative percent-equity curve. Always >= StaticDrawdown.
func TrailingDrawdown(curve []float64) float64 {
	if len(curve) < 2 {
		return 0
	}
	peak := curve[0]
	worst := 0.0
	for _, p := range curve[1:] {
		if p > peak {
			peak = p
		}
		if d := peak - p; d > worst {
			worst = d
		}
	}
	return worst
}

// drawdownTracker follows both drawdown depths point by point
type drawdownTracker struct {
	base     float64
	peak     float64
	static   float64
	trailing float64
}

func newDrawdownTracker(base float64) *drawdownTracker {
	return &drawdownTracker{base: base, peak: base}
}

// add records a point and returns its current static and trailing depth
func (d *drawdownTracker) add(p float64) (staticDepth, trailingDepth float64) {
	if p > d.peak {
		d.peak = p
	}
	staticDepth = max(0, d.base-p)
	trailingDepth = d.peak - p
	d.static = max(d.static, staticDepth)
	d.trailing = max(d.trailing, trailingDepth)
	return staticDepth, trailingDepth
}
