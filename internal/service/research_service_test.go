package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/limni-research/internal/datasource"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/repository"
	"github.com/yourusername/limni-research/internal/research"
)

// MockRunRepository mocks the run repository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) FindByConfigHash(ctx context.Context, hash string) (*models.ResearchRun, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResearchRun), args.Error(1)
}

func (m *MockRunRepository) Save(ctx context.Context, cfg models.ResearchConfig, hash string, result *models.ResearchRunResult) (*models.ResearchRun, error) {
	args := m.Called(ctx, cfg, hash, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResearchRun), args.Error(1)
}

func (m *MockRunRepository) SaveFailed(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) (*models.ResearchRun, error) {
	args := m.Called(ctx, cfg, hash, runErr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResearchRun), args.Error(1)
}

func (m *MockRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResearchRun), args.Error(1)
}

// stubSimulator returns a fixed result and counts calls
type stubSimulator struct {
	calls   atomic.Int32
	err     error
	delay   time.Duration
	lastCfg models.ResearchConfig
	mu      sync.Mutex
}

func (s *stubSimulator) Simulate(ctx context.Context, cfg models.ResearchConfig) (*models.ResearchRunResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.lastCfg = cfg
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	hash, _ := research.HashConfig(cfg)
	return &models.ResearchRunResult{
		RunID:      research.RunIDForHash(hash),
		ConfigHash: hash,
		Headline:   models.Headline{TotalReturnPct: 0.5, Trades: 6, PricedTrades: 6},
		Weekly:     []models.WeeklyRow{{WeekOpenUTC: "2026-01-05T00:00:00Z", ReturnPct: 0.5}},
	}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func validConfig() models.ResearchConfig {
	return models.ResearchConfig{
		Mode:      models.ModeHypotheticalSim,
		Provider:  models.ProviderOanda,
		DateRange: models.DateRange{From: "2026-01-05T00:00:00Z", To: "2026-01-26T00:00:00Z"},
		Universe:  models.Universe{AssetClasses: []models.AssetClass{models.AssetClassFX}},
		Models:    []models.StrategyModel{models.ModelBlended, models.ModelDealer},
		Execution: models.Execution{LegMode: models.LegModeFull, Order: models.OrderLegSequence},
		Risk:      models.Risk{MarginBuffer: 0.1, Leverage: 50, Sizing: models.SizingBrokerNative},
	}
}

func newService(t *testing.T, sim Simulator, runs repository.ResearchRunRepository) *ResearchService {
	t.Helper()
	svc, err := NewResearchService(sim, runs, quietLogger(), WithStoreName("memory"))
	require.NoError(t, err)
	return svc
}

func TestRunOrGetCachedMissThenHit(t *testing.T) {
	sim := &stubSimulator{}
	runs := repository.NewMemoryResearchRunRepository()
	svc := newService(t, sim, runs)
	ctx := context.Background()

	first, err := svc.RunOrGetCached(ctx, validConfig())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, models.RunStatusComplete, first.Run.Status)
	assert.Equal(t, first.Run.ID.String(), first.Run.Result.RunID)

	second, err := svc.RunOrGetCached(ctx, validConfig())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Run.ID, second.Run.ID)
	assert.Equal(t, first.Run.Result.RunID, second.Run.Result.RunID)

	assert.Equal(t, int32(1), sim.calls.Load())
	assert.Equal(t, 1, runs.Len())
}

func fixtureEngine(t *testing.T) *research.Engine {
	t.Helper()
	legs := []models.Leg{
		{Symbol: "EURUSD", AssetClass: models.AssetClassFX, Model: models.ModelBlended, Direction: models.DirectionLong},
		{Symbol: "EURUSD", AssetClass: models.AssetClassFX, Model: models.ModelDealer, Direction: models.DirectionShort},
		{Symbol: "GBPUSD", AssetClass: models.AssetClassFX, Model: models.ModelBlended, Direction: models.DirectionLong},
	}
	src, err := datasource.NewFixtureSource(datasource.FixtureFile{Weeks: []datasource.FixtureWeek{
		{WeekOpenUTC: "2026-01-05T00:00:00Z", Signals: legs, Prices: map[string]float64{"EURUSD": 1.0, "GBPUSD": -0.5}},
		{WeekOpenUTC: "2026-01-12T00:00:00Z", Signals: legs, Prices: map[string]float64{"EURUSD": 2.0, "GBPUSD": 1.0}},
	}})
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	engine, err := research.NewEngine(datasource.Sources{Signals: src, Performance: src, Prices: src}, quietLogger(), research.WithClock(clock))
	require.NoError(t, err)
	return engine
}

func TestRunOrGetCachedEndToEnd(t *testing.T) {
	engine := fixtureEngine(t)
	runs := repository.NewMemoryResearchRunRepository()
	svc := newService(t, engine, runs)
	ctx := context.Background()

	first, err := svc.RunOrGetCached(ctx, validConfig())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotNil(t, first.Run.Result)

	second, err := svc.RunOrGetCached(ctx, validConfig())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	require.NotNil(t, second.Run.Result)

	fresh, err := engine.Simulate(ctx, validConfig())
	require.NoError(t, err)

	firstResult, secondResult := *first.Run.Result, *second.Run.Result
	firstResult.RunID, secondResult.RunID, fresh.RunID = "", "", ""
	assert.Equal(t, firstResult, secondResult)
	assert.Equal(t, *fresh, firstResult)
	assert.NotEmpty(t, firstResult.Weekly)
	assert.Equal(t, 1, runs.Len())
}

func TestRunOrGetCachedRejectsInvalidConfig(t *testing.T) {
	runs := new(MockRunRepository)
	sim := &stubSimulator{}
	svc := newService(t, sim, runs)

	cfg := validConfig()
	cfg.DateRange.To = cfg.DateRange.From

	_, err := svc.RunOrGetCached(context.Background(), cfg)
	require.Error(t, err)

	var verr *research.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "dateRange")
	assert.Equal(t, int32(0), sim.calls.Load())
	runs.AssertNotCalled(t, "FindByConfigHash", mock.Anything, mock.Anything)
}

func TestRunOrGetCachedRecordsFailedRuns(t *testing.T) {
	runErr := errors.New("signals offline")
	sim := &stubSimulator{err: runErr}
	runs := repository.NewMemoryResearchRunRepository()
	svc := newService(t, sim, runs)

	_, err := svc.RunOrGetCached(context.Background(), validConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, 1, runs.Len())

	// The failed row is not a cache entry, so a retry simulates again.
	_, err = svc.RunOrGetCached(context.Background(), validConfig())
	require.Error(t, err)
	assert.Equal(t, int32(2), sim.calls.Load())
}

func TestRunOrGetCachedSkipsFailureRowOnCancellation(t *testing.T) {
	runs := new(MockRunRepository)
	runs.On("FindByConfigHash", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := &stubSimulator{err: context.Canceled}
	svc := newService(t, sim, runs)

	_, err := svc.RunOrGetCached(ctx, validConfig())
	assert.ErrorIs(t, err, context.Canceled)
	runs.AssertNotCalled(t, "SaveFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOrGetCachedWrapsLookupErrors(t *testing.T) {
	storeErr := errors.New("connection reset")
	runs := new(MockRunRepository)
	runs.On("FindByConfigHash", mock.Anything, mock.Anything).Return(nil, storeErr)
	sim := &stubSimulator{}
	svc := newService(t, sim, runs)

	_, err := svc.RunOrGetCached(context.Background(), validConfig())
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "find", perr.Op)
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, int32(0), sim.calls.Load())
}

func TestRunOrGetCachedWrapsSaveErrors(t *testing.T) {
	storeErr := errors.New("disk full")
	runs := new(MockRunRepository)
	runs.On("FindByConfigHash", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	runs.On("Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, storeErr)
	svc := newService(t, &stubSimulator{}, runs)

	_, err := svc.RunOrGetCached(context.Background(), validConfig())
	require.Error(t, err)

	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "save", perr.Op)
	assert.ErrorIs(t, err, storeErr)
	runs.AssertExpectations(t)
}

func TestRunOrGetCachedResolvesAdaptiveTrailing(t *testing.T) {
	sim := &stubSimulator{}
	runs := new(MockRunRepository)
	runs.On("FindByConfigHash", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	runs.On("Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&models.ResearchRun{ID: uuid.New(), Status: models.RunStatusComplete}, nil)

	profiles := research.NewTrailProfileCache(research.DefaultTrailProfileInputs(), time.Minute)
	svc, err := NewResearchService(sim, runs, quietLogger(), WithTrailProfiles(profiles))
	require.NoError(t, err)

	cfg := validConfig()
	cfg.Risk.Trailing = &models.Trailing{Adaptive: true}

	_, err = svc.RunOrGetCached(context.Background(), cfg)
	require.NoError(t, err)

	sim.mu.Lock()
	resolved := sim.lastCfg
	sim.mu.Unlock()
	require.NotNil(t, resolved.Risk.Trailing)
	assert.False(t, resolved.Risk.Trailing.Adaptive)
	assert.InDelta(t, 93.92825, resolved.Risk.Trailing.StartPct, 1e-9)
	assert.InDelta(t, 23.4820625, resolved.Risk.Trailing.OffsetPct, 1e-9)

	// The caller's config is untouched.
	assert.True(t, cfg.Risk.Trailing.Adaptive)

	_, hash, err := svc.Prepare(cfg)
	require.NoError(t, err)
	expected, err := research.HashConfig(resolved)
	require.NoError(t, err)
	assert.Equal(t, expected, hash)
	runs.AssertCalled(t, "FindByConfigHash", mock.Anything, expected)
}

func TestRunOrGetCachedCollapsesConcurrentRequests(t *testing.T) {
	sim := &stubSimulator{delay: 50 * time.Millisecond}
	runs := repository.NewMemoryResearchRunRepository()
	svc := newService(t, sim, runs)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := svc.RunOrGetCached(context.Background(), validConfig())
			if assert.NoError(t, err) {
				ids[i] = outcome.Run.ID
			}
		}(i)
	}
	wg.Wait()

	// Goroutines that missed the in-flight window hit the stored run instead.
	assert.Equal(t, int32(1), sim.calls.Load())
	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetRun(t *testing.T) {
	runs := repository.NewMemoryResearchRunRepository()
	svc := newService(t, &stubSimulator{}, runs)
	ctx := context.Background()

	outcome, err := svc.RunOrGetCached(ctx, validConfig())
	require.NoError(t, err)

	run, err := svc.GetRun(ctx, outcome.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, outcome.Run.ID, run.ID)

	_, err = svc.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	storeErr := errors.New("timeout")
	mocked := new(MockRunRepository)
	mocked.On("GetByID", mock.Anything, mock.Anything).Return(nil, storeErr)
	_, err = newService(t, &stubSimulator{}, mocked).GetRun(ctx, uuid.New())
	var perr *PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestNewResearchServiceRequiresCollaborators(t *testing.T) {
	_, err := NewResearchService(nil, repository.NewMemoryResearchRunRepository(), nil)
	assert.Error(t, err)
	_, err = NewResearchService(&stubSimulator{}, nil, nil)
	assert.Error(t, err)
}
