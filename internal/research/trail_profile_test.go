package research

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/limni-research/internal/models"
)

func TestComputeTrailProfileDefaults(t *testing.T) {
	profile := ComputeTrailProfile(DefaultTrailProfileInputs(), fixedClock())

	assert.InDelta(t, 93.92825, profile.StartPct, 1e-9)
	assert.InDelta(t, 23.4820625, profile.OffsetPct, 1e-9)
	assert.InDelta(t, 578.02, profile.PeakSumPct, 1e-9)
	assert.Equal(t, 4, profile.PeakCount)
}

func TestComputeTrailProfileClamps(t *testing.T) {
	low := ComputeTrailProfile(TrailProfileInputs{AvgPeakPct: 10, PeakCount: 1}, fixedClock())
	assert.Equal(t, 30.0, low.StartPct)
	assert.Equal(t, 8.0, low.OffsetPct)

	high := ComputeTrailProfile(TrailProfileInputs{AvgPeakPct: 1000, PeakCount: 1, OffsetFraction: 0.9}, fixedClock())
	assert.Equal(t, 130.0, high.StartPct)
	assert.Equal(t, 45.0, high.OffsetPct)
}

func TestTrailProfileCacheHitsWithinTTL(t *testing.T) {
	c := NewTrailProfileCache(DefaultTrailProfileInputs(), time.Minute)

	first, hit := c.Get()
	assert.False(t, hit)
	second, hit := c.Get()
	assert.True(t, hit)
	assert.Equal(t, first, second)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	c.Invalidate()
	_, hit = c.Get()
	assert.False(t, hit)
}

func TestResolveAdaptiveTrailing(t *testing.T) {
	cfg := baseConfig()
	cfg.Risk.Trailing = &models.Trailing{Adaptive: true}
	c := NewTrailProfileCache(DefaultTrailProfileInputs(), time.Minute)

	resolved, profile, _ := ResolveAdaptiveTrailing(cfg, c)

	require.NotNil(t, profile)
	assert.True(t, cfg.Risk.Trailing.Adaptive, "caller config must not change")
	assert.False(t, resolved.Risk.Trailing.Adaptive)
	assert.Equal(t, profile.StartPct, resolved.Risk.Trailing.StartPct)
}

func TestResolveAdaptiveTrailingPassThrough(t *testing.T) {
	cfg := baseConfig()

	resolved, profile, hit := ResolveAdaptiveTrailing(cfg, NewTrailProfileCache(DefaultTrailProfileInputs(), 0))

	assert.Nil(t, profile)
	assert.False(t, hit)
	assert.Equal(t, cfg, resolved)
}
