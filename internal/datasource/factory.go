package datasource

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/limni-research/internal/config"
)

// SourceType represents the type of data source
type SourceType string

const (
	// HTTPSourceType reads from the market-data API
	HTTPSourceType SourceType = config.SourceDriverHTTP
	// FixtureSourceType reads an offline JSON fixture
	FixtureSourceType SourceType = config.SourceDriverFixture
	// PostgresSourceType reads the research tables
	PostgresSourceType SourceType = config.SourceDriverPostgres
)

// Factory creates Sources implementations based on configuration
type Factory struct {
	logger *logrus.Logger
	config *config.Config
}

// NewFactory creates a new data source factory
func NewFactory(cfg *config.Config, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Factory{
		logger: logger,
		config: cfg,
	}
}

// Create builds the configured Sources. database supplies the PostgreSQL
// readers and is only consulted for the postgres driver. The result is
// wrapped in a week cache when a positive TTL is configured.
func (f *Factory) Create(database Sources) (Sources, error) {
	if f.config == nil {
		return Sources{}, fmt.Errorf("config is required")
	}

	sourceType := SourceType(f.config.Signals.Driver)
	var (
		sources Sources
		err     error
	)
	switch sourceType {
	case HTTPSourceType:
		sources, err = f.createHTTPSource()
	case FixtureSourceType:
		sources, err = f.createFixtureSource()
	case PostgresSourceType:
		sources, err = f.createPostgresSource(database)
	default:
		return Sources{}, fmt.Errorf("unknown data source type: %s", sourceType)
	}
	if err != nil {
		return Sources{}, err
	}

	ttl := f.config.WeekCacheTTL()
	f.logger.WithFields(logrus.Fields{
		"driver":    sourceType,
		"cache_ttl": ttl.String(),
	}).Info("Created data source")

	if ttl <= 0 {
		return sources, nil
	}
	return NewCachedSource(sources, ttl).Sources(), nil
}

func (f *Factory) createHTTPSource() (Sources, error) {
	sc := f.config.Signals
	if sc.BaseURL == "" {
		return Sources{}, fmt.Errorf("http data source requires a base URL")
	}

	httpCfg := DefaultHTTPClientConfig()
	if sc.TimeoutSeconds > 0 {
		httpCfg.Timeout = time.Duration(sc.TimeoutSeconds) * time.Second
	}
	httpCfg.MaxRetries = sc.MaxRetries
	if sc.RateLimit > 0 {
		httpCfg.RateLimit = sc.RateLimit
	}
	httpCfg.CircuitBreakerMax = sc.CircuitBreakerMax

	client := NewRateLimitedHTTPClient(httpCfg, f.logger)
	api := NewHTTPMarketData(client, sc.BaseURL, sc.APIKey, f.logger)
	return Sources{Signals: api, Performance: api, Prices: api}, nil
}

func (f *Factory) createFixtureSource() (Sources, error) {
	src, err := LoadFixtureFile(f.config.Signals.FixturePath)
	if err != nil {
		return Sources{}, err
	}
	return Sources{Signals: src, Performance: src, Prices: src}, nil
}

func (f *Factory) createPostgresSource(database Sources) (Sources, error) {
	if database.Signals == nil && database.Performance == nil {
		return Sources{}, fmt.Errorf("postgres data source requires database repositories")
	}
	return database, nil
}

// ListAvailableSources returns the source types this build can create
func (f *Factory) ListAvailableSources() []SourceType {
	return []SourceType{HTTPSourceType, FixtureSourceType, PostgresSourceType}
}
