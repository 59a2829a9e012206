package research

import (
	"math"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/limni-research/internal/models"
)

// Fallback inputs from the latest validated universal runs
const (
	DefaultAvgPeakPct       = 144.505
	DefaultPeakCount        = 4
	DefaultStartMultiplier  = 0.65
	DefaultOffsetFraction   = 0.25
	DefaultTrailProfileTTL  = 60 * time.Second
	minTrailStartPct        = 30
	maxTrailStartPct        = 130
	minTrailOffsetPct       = 8
	maxTrailOffsetPct       = 45
	trailProfileCacheKey    = "adaptive"
	trailProfileSourceInput = "config_or_fallback"
)

// TrailProfileInputs are the observed peak statistics the profile derives from
type TrailProfileInputs struct {
	AvgPeakPct      float64
	PeakCount       int
	PeakSumPct      float64
	StartMultiplier float64
	OffsetFraction  float64
}

// DefaultTrailProfileInputs returns the fallback inputs
func DefaultTrailProfileInputs() TrailProfileInputs {
	return TrailProfileInputs{
		AvgPeakPct:      DefaultAvgPeakPct,
		PeakCount:       DefaultPeakCount,
		StartMultiplier: DefaultStartMultiplier,
		OffsetFraction:  DefaultOffsetFraction,
	}
}

// TrailProfile is a resolved adaptive trailing configuration
type TrailProfile struct {
	Source          string    `json:"trail_profile_source"`
	GeneratedAt     time.Time `json:"trail_profile_generated_at_utc"`
	AvgPeakPct      float64   `json:"adaptive_avg_peak_pct"`
	PeakCount       int       `json:"adaptive_peak_count"`
	PeakSumPct      float64   `json:"adaptive_peak_sum_pct"`
	StartMultiplier float64   `json:"adaptive_start_multiplier"`
	OffsetFraction  float64   `json:"adaptive_offset_fraction"`
	StartPct        float64   `json:"adaptive_trail_start_pct"`
	OffsetPct       float64   `json:"adaptive_trail_offset_pct"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// ComputeTrailProfile derives trailing start and offset from peak statistics
func ComputeTrailProfile(in TrailProfileInputs, now time.Time) TrailProfile {
	if in.AvgPeakPct <= 0 {
		in.AvgPeakPct = DefaultAvgPeakPct
	}
	if in.PeakCount < 1 {
		in.PeakCount = 1
	}
	if in.PeakSumPct <= 0 {
		in.PeakSumPct = in.AvgPeakPct * float64(in.PeakCount)
	}
	if in.StartMultiplier <= 0 {
		in.StartMultiplier = DefaultStartMultiplier
	}
	if in.OffsetFraction <= 0 {
		in.OffsetFraction = DefaultOffsetFraction
	}

	start := clamp(in.AvgPeakPct*in.StartMultiplier, minTrailStartPct, maxTrailStartPct)
	offset := clamp(start*in.OffsetFraction, minTrailOffsetPct, maxTrailOffsetPct)

	return TrailProfile{
		Source:          trailProfileSourceInput,
		GeneratedAt:     now.UTC(),
		AvgPeakPct:      in.AvgPeakPct,
		PeakCount:       in.PeakCount,
		PeakSumPct:      in.PeakSumPct,
		StartMultiplier: in.StartMultiplier,
		OffsetFraction:  in.OffsetFraction,
		StartPct:        start,
		OffsetPct:       offset,
	}
}

// TrailProfileCache memoizes the adaptive profile for a TTL.
// It is injected where needed; there is no package-level instance.
type TrailProfileCache struct {
	cache  *cache.Cache
	inputs TrailProfileInputs
	ttl    time.Duration
	clock  func() time.Time
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewTrailProfileCache creates a cache computing profiles from inputs
func NewTrailProfileCache(inputs TrailProfileInputs, ttl time.Duration) *TrailProfileCache {
	if ttl <= 0 {
		ttl = DefaultTrailProfileTTL
	}
	return &TrailProfileCache{
		cache:  cache.New(ttl, ttl*2),
		inputs: inputs,
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Get returns the cached profile, computing it on a miss
func (c *TrailProfileCache) Get() (TrailProfile, bool) {
	if cached, found := c.cache.Get(trailProfileCacheKey); found {
		if profile, ok := cached.(TrailProfile); ok {
			c.hits.Add(1)
			return profile, true
		}
	}
	c.misses.Add(1)
	profile := ComputeTrailProfile(c.inputs, c.clock())
	c.cache.Set(trailProfileCacheKey, profile, c.ttl)
	return profile, false
}

// Invalidate drops the cached profile
func (c *TrailProfileCache) Invalidate() {
	c.cache.Delete(trailProfileCacheKey)
}

// Stats returns cache hit and miss counts
func (c *TrailProfileCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// ResolveAdaptiveTrailing returns a copy of cfg with adaptive trailing
// parameters substituted. Configs without adaptive trailing are returned as
// copies unchanged. The resolved config no longer carries the adaptive flag,
// so its hash reflects the concrete parameters.
func ResolveAdaptiveTrailing(cfg models.ResearchConfig, profiles *TrailProfileCache) (models.ResearchConfig, *TrailProfile, bool) {
	out := cfg.Clone()
	if out.Risk.Trailing == nil || !out.Risk.Trailing.Adaptive || profiles == nil {
		return out, nil, false
	}
	profile, hit := profiles.Get()
	out.Risk.Trailing = &models.Trailing{
		StartPct:  profile.StartPct,
		OffsetPct: profile.OffsetPct,
	}
	return out, &profile, hit
}
