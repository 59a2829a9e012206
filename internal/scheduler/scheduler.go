// Package scheduler runs periodic week ingestion on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/service"
	"github.com/yourusername/limni-research/internal/weeks"
)

// Ingester copies a range of weeks into the research tables
type Ingester interface {
	IngestRange(ctx context.Context, from, to time.Time) (*service.IngestionMetrics, error)
}

// Scheduler manages the scheduled ingest job
type Scheduler struct {
	cron          *cron.Cron
	ingester      Ingester
	lookbackWeeks int
	jobTimeout    time.Duration
	clock         func() time.Time
	logger        *logrus.Entry

	mu      sync.RWMutex
	running bool
	jobID   cron.EntryID
	pass    sync.Mutex
}

// NewScheduler creates a scheduler. Each pass re-ingests the current week
// plus lookbackWeeks-1 prior weeks.
func NewScheduler(ingester Ingester, lookbackWeeks int, jobTimeout time.Duration, logger *logrus.Logger) *Scheduler {
	if lookbackWeeks < 1 {
		lookbackWeeks = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = time.Hour
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(time.UTC)),
		ingester:      ingester,
		lookbackWeeks: lookbackWeeks,
		jobTimeout:    jobTimeout,
		clock:         time.Now,
		logger:        logger.WithField("component", "scheduler"),
	}
}

// ScheduleIngest registers the ingest job. Standard five-field cron
// expressions and descriptors such as @weekly are accepted.
func (s *Scheduler) ScheduleIngest(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if s.jobID != 0 {
		s.cron.Remove(s.jobID)
	}

	id, err := s.cron.AddFunc(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid ingest schedule %q: %w", expr, err)
	}
	s.jobID = id
	s.logger.WithField("schedule", expr).Info("Scheduled week ingestion")
	return nil
}

// Window returns the [from, to) range a pass at now covers
func (s *Scheduler) Window(now time.Time) (time.Time, time.Time) {
	current := weeks.CanonicalWeekOpen(now)
	from := current
	for i := 1; i < s.lookbackWeeks; i++ {
		from = weeks.CanonicalWeekOpen(from.Add(-time.Hour))
	}
	return from, weeks.Next(current)
}

// RunOnce performs one ingest pass. Overlapping passes are serialized.
func (s *Scheduler) RunOnce(ctx context.Context) (*service.IngestionMetrics, error) {
	s.pass.Lock()
	defer s.pass.Unlock()

	from, to := s.Window(s.clock())
	m, err := s.ingester.IngestRange(ctx, from, to)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled ingestion failed")
		return m, err
	}
	s.logger.WithFields(logrus.Fields{
		"from":   weeks.Format(from),
		"to":     weeks.Format(to),
		"weeks":  m.Weeks,
		"errors": m.Errors,
	}).Info("Scheduled ingestion complete")
	return m, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.jobID == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.running = true
	s.logger.WithField("next_run", s.cron.Entry(s.jobID).Next).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// NextRun returns the time of the next scheduled pass, zero when stopped
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.jobID == 0 {
		return time.Time{}
	}
	entry := s.cron.Entry(s.jobID)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}
