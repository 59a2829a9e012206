package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/weeks"
)

// CachedSource memoizes week data from the wrapped sources for a TTL.
// Absence and errors are never cached.
type CachedSource struct {
	inner  Sources
	cache  *cache.Cache
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedSource wraps sources with an in-memory cache
func NewCachedSource(inner Sources, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

// Sources returns the cached views as a Sources bundle, keeping nil members nil
func (c *CachedSource) Sources() Sources {
	var out Sources
	if c.inner.Signals != nil {
		out.Signals = c
	}
	if c.inner.Performance != nil {
		out.Performance = c
	}
	if c.inner.Prices != nil {
		out.Prices = c
	}
	return out
}

func joinSorted(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (c *CachedSource) lookup(key string) (any, bool) {
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}
	c.misses.Add(1)
	return nil, false
}

// GetSignals implements SignalSource
func (c *CachedSource) GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error) {
	classes := make([]string, len(assetClasses))
	for i, ac := range assetClasses {
		classes[i] = string(ac)
	}
	key := fmt.Sprintf("signals:%s:%s:%s", weeks.Format(weekOpen), joinSorted(classes), joinSorted(symbols))
	if v, ok := c.lookup(key); ok {
		return append([]models.Leg(nil), v.([]models.Leg)...), nil
	}

	legs, err := c.inner.Signals.GetSignals(ctx, weekOpen, assetClasses, symbols)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]models.Leg(nil), legs...), c.ttl)
	return legs, nil
}

// GetWeeklyReturns implements PerformanceSource
func (c *CachedSource) GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error) {
	key := "performance:" + weeks.Format(weekOpen)
	if v, ok := c.lookup(key); ok {
		return append([]models.WeeklyPerformance(nil), v.([]models.WeeklyPerformance)...), nil
	}

	rows, err := c.inner.Performance.GetWeeklyReturns(ctx, weekOpen)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]models.WeeklyPerformance(nil), rows...), c.ttl)
	return rows, nil
}

// GetWeeklyChanges implements PriceSource
func (c *CachedSource) GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error) {
	key := fmt.Sprintf("prices:%s:%s", weeks.Format(weekOpen), joinSorted(symbols))
	if v, ok := c.lookup(key); ok {
		return copyChanges(v.(map[string]float64)), nil
	}

	changes, err := c.inner.Prices.GetWeeklyChanges(ctx, weekOpen, symbols)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, copyChanges(changes), c.ttl)
	return changes, nil
}

func copyChanges(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Stats returns cache hit and miss counts
func (c *CachedSource) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Flush empties the cache
func (c *CachedSource) Flush() {
	c.cache.Flush()
}
