package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/limni-research/internal/models"
)

// SignalSource provides model legs for a canonical week
type SignalSource interface {
	// GetSignals returns the legs issued for weekOpen, limited to the given
	// asset classes and, when non-empty, symbols
	GetSignals(ctx context.Context, weekOpen time.Time, assetClasses []models.AssetClass, symbols []string) ([]models.Leg, error)
}

// PerformanceSource provides realized weekly results
type PerformanceSource interface {
	// GetWeeklyReturns returns every model/asset-class row for weekOpen
	GetWeeklyReturns(ctx context.Context, weekOpen time.Time) ([]models.WeeklyPerformance, error)
}

// PriceSource provides realized weekly moves for sim mode
type PriceSource interface {
	// GetWeeklyChanges returns symbol -> percent change over the week.
	// Symbols without data are absent from the map.
	GetWeeklyChanges(ctx context.Context, weekOpen time.Time, symbols []string) (map[string]float64, error)
}

// Sources bundles the collaborators the research engine reads from
type Sources struct {
	Signals     SignalSource
	Performance PerformanceSource
	Prices      PriceSource
}

// DataSourceError represents errors from data source operations
type DataSourceError struct {
	Source  string // Data source name
	Code    string // Error code (e.g., "rate_limit_exceeded")
	Message string // Error message
	Err     error  // Underlying error
}

func (e DataSourceError) Error() string {
	if e.Err != nil {
		return e.Source + ": " + e.Code + ": " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Source + ": " + e.Code + ": " + e.Message
}

// Unwrap exposes the underlying error to errors.Is and errors.As
func (e DataSourceError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeNotFound             = "not_found"
	ErrCodeInvalidData          = "invalid_data"
	ErrCodeNetworkError         = "network_error"
	ErrCodeServerError          = "server_error"
	ErrCodeUnknown              = "unknown"
)

// Sentinel errors wrapped by DataSourceError
var (
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotFound             = errors.New("data not found")
	ErrInvalidData          = errors.New("invalid data format")
	ErrNetworkError         = errors.New("network error")
	ErrServerError          = errors.New("server error")
)

// NewDataSourceError creates a new data source error
func NewDataSourceError(source, code, message string, err error) DataSourceError {
	return DataSourceError{
		Source:  source,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsAbsent reports whether err only means the week has no data
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, models.ErrNotFound)
}
