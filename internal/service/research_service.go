package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/limni-research/internal/logger"
	"github.com/yourusername/limni-research/internal/metrics"
	"github.com/yourusername/limni-research/internal/models"
	"github.com/yourusername/limni-research/internal/repository"
	"github.com/yourusername/limni-research/internal/research"
)

// Simulator runs a research config to a result
type Simulator interface {
	Simulate(ctx context.Context, cfg models.ResearchConfig) (*models.ResearchRunResult, error)
}

// RunOutcome is the answer to a run request
type RunOutcome struct {
	Cached bool
	Run    *models.ResearchRun
}

// PersistenceError wraps a run store failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("research run store: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the store error to errors.Is and errors.As
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ResearchService validates, memoizes and executes research runs
type ResearchService struct {
	engine    Simulator
	runs      repository.ResearchRunRepository
	profiles  *research.TrailProfileCache
	logger    *logger.ResearchLogger
	audit     *logger.AuditLogger
	storeName string
	clock     func() time.Time
	group     singleflight.Group
}

// ServiceOption configures a ResearchService
type ServiceOption func(*ResearchService)

// WithTrailProfiles sets the cache used to resolve adaptive trailing
func WithTrailProfiles(profiles *research.TrailProfileCache) ServiceOption {
	return func(s *ResearchService) {
		s.profiles = profiles
	}
}

// WithStoreName labels audit entries with the store backend
func WithStoreName(name string) ServiceOption {
	return func(s *ResearchService) {
		s.storeName = name
	}
}

// NewResearchService creates a research service
func NewResearchService(engine Simulator, runs repository.ResearchRunRepository, log *logrus.Logger, opts ...ServiceOption) (*ResearchService, error) {
	if engine == nil {
		return nil, fmt.Errorf("simulator is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if log == nil {
		log = logrus.New()
	}
	s := &ResearchService{
		engine:    engine,
		runs:      runs,
		profiles:  research.NewTrailProfileCache(research.DefaultTrailProfileInputs(), research.DefaultTrailProfileTTL),
		logger:    logger.NewResearchLogger(log),
		audit:     logger.NewAuditLogger(log),
		storeName: "unknown",
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Prepare validates cfg, resolves adaptive trailing and returns the
// effective config with its hash
func (s *ResearchService) Prepare(cfg models.ResearchConfig) (models.ResearchConfig, string, error) {
	if err := research.Check(cfg); err != nil {
		var verr *research.ValidationError
		if errors.As(err, &verr) {
			s.logger.LogConfigRejected(verr.Reasons)
		}
		metrics.RecordResearchRun(string(cfg.Mode), metrics.StatusRejected)
		return models.ResearchConfig{}, "", err
	}

	resolved, profile, hit := research.ResolveAdaptiveTrailing(cfg, s.profiles)
	if profile != nil {
		s.audit.LogTrailProfileResolved(profile.StartPct, profile.OffsetPct, profile.PeakCount, hit)
		metrics.RecordTrailProfileLookup(hit)
	}

	hash, err := research.HashConfig(resolved)
	if err != nil {
		return models.ResearchConfig{}, "", fmt.Errorf("hash config: %w", err)
	}
	return resolved, hash, nil
}

// RunOrGetCached returns the stored run for an identical config or runs the
// simulation and stores it. Identical in-flight requests share one simulation.
func (s *ResearchService) RunOrGetCached(ctx context.Context, cfg models.ResearchConfig) (*RunOutcome, error) {
	resolved, hash, err := s.Prepare(cfg)
	if err != nil {
		return nil, err
	}

	existing, err := s.runs.FindByConfigHash(ctx, hash)
	switch {
	case err == nil:
		metrics.RecordCacheLookup(true)
		metrics.RecordResearchRun(string(resolved.Mode), metrics.StatusCached)
		s.logger.LogCacheHit(hash, existing.ID.String())
		return &RunOutcome{Cached: true, Run: existing}, nil
	case !errors.Is(err, models.ErrNotFound):
		metrics.RecordPersistenceError()
		s.logger.LogRunFailed(hash, "lookup", err)
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	metrics.RecordCacheLookup(false)

	v, err, _ := s.group.Do(hash, func() (any, error) {
		return s.execute(ctx, resolved, hash)
	})
	if err != nil {
		return nil, err
	}
	return &RunOutcome{Cached: false, Run: v.(*models.ResearchRun)}, nil
}

func (s *ResearchService) execute(ctx context.Context, cfg models.ResearchConfig, hash string) (*models.ResearchRun, error) {
	mode := string(cfg.Mode)
	start := s.clock()

	result, err := s.engine.Simulate(ctx, cfg)
	if err != nil {
		s.logger.LogRunFailed(hash, "simulate", err)
		metrics.RecordResearchRun(mode, metrics.StatusError)
		if ctx.Err() == nil {
			s.recordFailure(ctx, cfg, hash, err)
		}
		return nil, err
	}

	elapsed := s.clock().Sub(start)
	run, err := s.runs.Save(ctx, cfg, hash, result)
	if err != nil {
		metrics.RecordPersistenceError()
		s.logger.LogRunFailed(hash, "save", err)
		return nil, &PersistenceError{Op: "save", Err: err}
	}

	metrics.RecordResearchRun(mode, metrics.StatusComplete)
	metrics.RecordSimulation(mode, elapsed.Seconds(), len(result.Weekly), result.Headline.TotalReturnPct)
	s.logger.LogRunCompleted(hash, run.ID.String(), result.Headline.TotalReturnPct,
		result.Headline.Trades, result.Headline.PricedTrades, float64(elapsed.Milliseconds()))
	s.audit.LogRunPersisted(run.ID.String(), hash, string(run.Status), s.storeName, run.CreatedAt)
	return run, nil
}

func (s *ResearchService) recordFailure(ctx context.Context, cfg models.ResearchConfig, hash string, runErr error) {
	run, err := s.runs.SaveFailed(ctx, cfg, hash, runErr)
	if err != nil {
		metrics.RecordPersistenceError()
		s.logger.LogRunFailed(hash, "save_failed", err)
		return
	}
	s.audit.LogRunPersisted(run.ID.String(), hash, string(run.Status), s.storeName, run.CreatedAt)
}

// GetRun returns a stored run by id
func (s *ResearchService) GetRun(ctx context.Context, id uuid.UUID) (*models.ResearchRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		metrics.RecordPersistenceError()
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return run, nil
}
