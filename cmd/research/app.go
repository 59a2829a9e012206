package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/config"
	"github.com/yourusername/limni-research/internal/database"
	"github.com/yourusername/limni-research/internal/datasource"
	"github.com/yourusername/limni-research/internal/logger"
	"github.com/yourusername/limni-research/internal/repository"
	"github.com/yourusername/limni-research/internal/research"
	"github.com/yourusername/limni-research/internal/service"
)

// app holds the wired dependencies for one command invocation
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	db      *database.DB
	repos   *repository.Repositories
	sources datasource.Sources
	service *service.ResearchService
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if storeOverride != "" {
		cfg.Store.Driver = storeOverride
	}
	if err := config.LoadSecretsFromAWS(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.ValidateEnvironment(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

// newApp wires the configured stack. withDB forces a database connection
// even when neither the store nor the source driver is postgres.
func newApp(ctx context.Context, withDB bool) (*app, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	log := logger.NewLoggerWithOutput(cfg.App.LogLevel, os.Stderr)
	if cfg.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	a := &app{cfg: cfg, logger: log}
	if withDB || cfg.NeedsDatabase() {
		if a.db, err = database.Initialize(ctx, cfg, log); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if a.repos, err = repository.Open(ctx, cfg, a.db); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to open repositories: %w", err)
	}

	dbSources := datasource.Sources{
		Signals:     a.repos.Signals,
		Performance: a.repos.Performance,
		Prices:      a.repos.Prices,
	}
	if a.sources, err = datasource.NewFactory(cfg, log).Create(dbSources); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create data source: %w", err)
	}

	engine, err := research.NewEngine(a.sources, log, research.WithFetchConcurrency(cfg.Research.FetchConcurrency))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	tp := cfg.Research.TrailProfile
	profiles := research.NewTrailProfileCache(research.TrailProfileInputs{
		AvgPeakPct:      tp.AvgPeakPct,
		PeakCount:       tp.PeakCount,
		PeakSumPct:      tp.PeakSumPct,
		StartMultiplier: tp.StartMultiplier,
		OffsetFraction:  tp.OffsetFraction,
	}, cfg.TrailProfileTTL())

	a.service, err = service.NewResearchService(engine, a.repos.Runs, log,
		service.WithTrailProfiles(profiles),
		service.WithStoreName(cfg.Store.Driver),
	)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create research service: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.repos != nil {
		if err := a.repos.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close run store")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
