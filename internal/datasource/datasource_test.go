package datasource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/limni-research/internal/config"
	"github.com/yourusername/limni-research/internal/models"
)

const fixturePath = "testdata/fixture_weeks.json"

var (
	firstWeek  = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	secondWeek = time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
)

func loadFixture(t *testing.T) *FixtureSource {
	t.Helper()
	src, err := LoadFixtureFile(fixturePath)
	require.NoError(t, err)
	return src
}

func TestFixtureSourceSignalsFiltered(t *testing.T) {
	src := loadFixture(t)
	ctx := context.Background()

	legs, err := src.GetSignals(ctx, firstWeek, []models.AssetClass{models.AssetClassFX}, nil)
	require.NoError(t, err)
	assert.Len(t, legs, 2)

	legs, err = src.GetSignals(ctx, firstWeek, []models.AssetClass{models.AssetClassFX}, []string{"GBPUSD"})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, models.DirectionShort, legs[0].Direction)
}

func TestFixtureSourceNormalizesLegacyWeekKeys(t *testing.T) {
	src := loadFixture(t)

	// Sunday 12:30 ET snaps forward onto the Sunday 19:00 ET open.
	legs, err := src.GetSignals(context.Background(), secondWeek, nil, nil)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, "EURUSD", legs[0].Symbol)
}

func TestFixtureSourceDedupesPerformance(t *testing.T) {
	src := loadFixture(t)

	rows, err := src.GetWeeklyReturns(context.Background(), secondWeek)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Priced)
	assert.InDelta(t, 0.4, rows[0].Percent, 1e-9)
	assert.True(t, rows[0].WeekOpenUTC.Equal(secondWeek))
}

func TestFixtureSourcePrices(t *testing.T) {
	src := loadFixture(t)

	changes, err := src.GetWeeklyChanges(context.Background(), firstWeek, []string{"EURUSD", "USDJPY"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"EURUSD": 0.8}, changes)
}

func TestFixtureSourceMissingWeek(t *testing.T) {
	src := loadFixture(t)

	_, err := src.GetWeeklyReturns(context.Background(), firstWeek.AddDate(0, 0, 21))
	require.Error(t, err)
	assert.True(t, IsAbsent(err))

	var dsErr DataSourceError
	require.True(t, errors.As(err, &dsErr))
	assert.Equal(t, ErrCodeNotFound, dsErr.Code)
}

func TestLoadFixtureFileErrors(t *testing.T) {
	_, err := LoadFixtureFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = NewFixtureSource(FixtureFile{Weeks: []FixtureWeek{{WeekOpenUTC: "not-a-date"}}})
	assert.Error(t, err)
}

type countingSignals struct {
	calls atomic.Int32
	err   error
}

func (c *countingSignals) GetSignals(_ context.Context, _ time.Time, _ []models.AssetClass, _ []string) ([]models.Leg, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []models.Leg{{Symbol: "EURUSD", AssetClass: models.AssetClassFX, Model: models.ModelBlended, Direction: models.DirectionLong}}, nil
}

func TestCachedSourceMemoizesSignals(t *testing.T) {
	inner := &countingSignals{}
	cached := NewCachedSource(Sources{Signals: inner}, time.Minute)
	ctx := context.Background()

	first, err := cached.GetSignals(ctx, firstWeek, []models.AssetClass{models.AssetClassFX}, []string{"B", "A"})
	require.NoError(t, err)
	first[0].Symbol = "MUTATED"

	second, err := cached.GetSignals(ctx, firstWeek, []models.AssetClass{models.AssetClassFX}, []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, "EURUSD", second[0].Symbol)

	hits, misses := cached.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	cached.Flush()
	_, err = cached.GetSignals(ctx, firstWeek, []models.AssetClass{models.AssetClassFX}, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedSourceDoesNotCacheErrors(t *testing.T) {
	inner := &countingSignals{err: ErrNotFound}
	cached := NewCachedSource(Sources{Signals: inner}, time.Minute)

	for i := 0; i < 2; i++ {
		_, err := cached.GetSignals(context.Background(), firstWeek, nil, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedSourceKeepsNilMembers(t *testing.T) {
	cached := NewCachedSource(Sources{Signals: &countingSignals{}}, time.Minute)
	s := cached.Sources()

	assert.NotNil(t, s.Signals)
	assert.Nil(t, s.Performance)
	assert.Nil(t, s.Prices)
}

func newTestHTTPClient() *RateLimitedHTTPClient {
	cfg := DefaultHTTPClientConfig()
	cfg.MaxRetries = 0
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = time.Millisecond
	cfg.RateLimit = 1000
	cfg.CircuitBreakerMax = 2
	return NewRateLimitedHTTPClient(cfg, nil)
}

func TestHTTPMarketDataSignals(t *testing.T) {
	var gotKey, gotWeek, gotClasses string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/signals", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		gotWeek = r.URL.Query().Get("week_open_utc")
		gotClasses = r.URL.Query().Get("asset_classes")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"week_open_utc":"2026-01-05T00:00:00Z","legs":[{"symbol":"EURUSD","assetClass":"fx","model":"dealer","direction":"SHORT"}]}`))
	}))
	defer server.Close()

	api := NewHTTPMarketData(newTestHTTPClient(), server.URL+"/", "k-123", nil)
	legs, err := api.GetSignals(context.Background(), firstWeek, []models.AssetClass{models.AssetClassFX, models.AssetClassCrypto}, nil)
	require.NoError(t, err)

	require.Len(t, legs, 1)
	assert.Equal(t, models.ModelDealer, legs[0].Model)
	assert.Equal(t, "k-123", gotKey)
	assert.Equal(t, "2026-01-05T00:00:00Z", gotWeek)
	assert.Equal(t, "fx,crypto", gotClasses)
}

func TestHTTPMarketDataPerformanceDedupes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rows":[
			{"model":"blended","asset_class":"fx","percent":0.1,"priced":1,"total":3},
			{"model":"blended","asset_class":"fx","percent":0.3,"priced":3,"total":3}
		]}`))
	}))
	defer server.Close()

	api := NewHTTPMarketData(newTestHTTPClient(), server.URL, "", nil)
	rows, err := api.GetWeeklyReturns(context.Background(), firstWeek)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.InDelta(t, 0.3, rows[0].Percent, 1e-9)
	assert.True(t, rows[0].WeekOpenUTC.Equal(firstWeek))
}

func TestHTTPMarketDataPricesSkipsEmptySymbols(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"changes":{"EURUSD":0.25}}`))
	}))
	defer server.Close()

	api := NewHTTPMarketData(newTestHTTPClient(), server.URL, "", nil)

	changes, err := api.GetWeeklyChanges(context.Background(), firstWeek, nil)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, int32(0), calls.Load())

	changes, err = api.GetWeeklyChanges(context.Background(), firstWeek, []string{"EURUSD"})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, changes["EURUSD"], 1e-9)
}

func TestHTTPMarketDataStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		absent bool
	}{
		{name: "not found", status: http.StatusNotFound, want: ErrNotFound, absent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrAuthenticationFailed},
		{name: "forbidden", status: http.StatusForbidden, want: ErrAuthenticationFailed},
		{name: "not implemented", status: http.StatusNotImplemented, want: ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			api := NewHTTPMarketData(newTestHTTPClient(), server.URL, "", nil)
			_, err := api.GetWeeklyReturns(context.Background(), firstWeek)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.absent, IsAbsent(err))
		})
	}
}

func TestHTTPMarketDataInvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	api := NewHTTPMarketData(newTestHTTPClient(), server.URL, "", nil)
	_, err := api.GetSignals(context.Background(), firstWeek, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestRateLimitedHTTPClientCircuitBreaker(t *testing.T) {
	client := newTestHTTPClient()
	// Nothing listens on this address, so every request fails at the transport.
	url := "http://127.0.0.1:1/unreachable"

	for i := 0; i < 2; i++ {
		_, err := client.Get(context.Background(), url, nil)
		require.Error(t, err)
	}

	_, err := client.Get(context.Background(), url, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")

	client.Reset()
	_, err = client.Get(context.Background(), url, nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "circuit breaker open")
	assert.NoError(t, client.Close())
}

func TestFactoryCreatesFixtureSourceWithCache(t *testing.T) {
	cfg := &config.Config{
		Signals:  config.SignalsConfig{Driver: config.SourceDriverFixture, FixturePath: fixturePath},
		Research: config.ResearchConfig{WeekCacheTTLSeconds: 60},
	}

	sources, err := NewFactory(cfg, nil).Create(Sources{})
	require.NoError(t, err)

	_, isCached := sources.Signals.(*CachedSource)
	assert.True(t, isCached)

	legs, err := sources.Signals.GetSignals(context.Background(), firstWeek, []models.AssetClass{models.AssetClassFX}, nil)
	require.NoError(t, err)
	assert.Len(t, legs, 2)
}

func TestFactoryCreatesUncachedHTTPSource(t *testing.T) {
	cfg := &config.Config{
		Signals: config.SignalsConfig{Driver: config.SourceDriverHTTP, BaseURL: "http://localhost:9999", MaxRetries: 1},
	}

	sources, err := NewFactory(cfg, nil).Create(Sources{})
	require.NoError(t, err)

	_, isHTTP := sources.Prices.(*HTTPMarketData)
	assert.True(t, isHTTP)
}

func TestFactoryPostgresRequiresRepositories(t *testing.T) {
	cfg := &config.Config{Signals: config.SignalsConfig{Driver: config.SourceDriverPostgres}}
	factory := NewFactory(cfg, nil)

	_, err := factory.Create(Sources{})
	assert.Error(t, err)

	db := Sources{Signals: &countingSignals{}}
	sources, err := factory.Create(db)
	require.NoError(t, err)
	assert.Equal(t, db.Signals, sources.Signals)
}

func TestFactoryUnknownDriver(t *testing.T) {
	cfg := &config.Config{Signals: config.SignalsConfig{Driver: "smoke-signals"}}
	_, err := NewFactory(cfg, nil).Create(Sources{})
	assert.Error(t, err)
	assert.Len(t, NewFactory(cfg, nil).ListAvailableSources(), 3)
}
