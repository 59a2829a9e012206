// Package logger provides research-run logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// ResearchLogger provides dedicated logging for research runs.
type ResearchLogger struct {
	*logrus.Entry
}

// NewResearchLogger creates a new research logger.
func NewResearchLogger(baseLogger *logrus.Logger) *ResearchLogger {
	return &ResearchLogger{
		Entry: baseLogger.WithField("component", "research"),
	}
}

// LogRunStarted logs the start of a fresh simulation.
func (rl *ResearchLogger) LogRunStarted(configHash, mode, provider string, weeks int) {
	rl.WithFields(logrus.Fields{
		"config_hash": configHash,
		"mode":        mode,
		"provider":    provider,
		"weeks":       weeks,
	}).Info("Research run started")
}

// LogCacheHit logs a memoized run being served.
func (rl *ResearchLogger) LogCacheHit(configHash, runID string) {
	rl.WithFields(logrus.Fields{
		"config_hash": configHash,
		"run_id":      runID,
		"cached":      true,
	}).Info("Research run served from cache")
}

// LogRunCompleted logs a finished and persisted simulation.
func (rl *ResearchLogger) LogRunCompleted(configHash, runID string, totalReturnPct float64, trades, pricedTrades int, durationMs float64) {
	rl.WithFields(logrus.Fields{
		"config_hash":      configHash,
		"run_id":           runID,
		"total_return_pct": totalReturnPct,
		"trades":           trades,
		"priced_trades":    pricedTrades,
		"duration_ms":      durationMs,
	}).Info("Research run completed")
}

// LogRunFailed logs a simulation or persistence failure.
func (rl *ResearchLogger) LogRunFailed(configHash, stage string, err error) {
	rl.WithFields(logrus.Fields{
		"config_hash": configHash,
		"stage":       stage,
	}).WithError(err).Error("Research run failed")
}

// LogConfigRejected logs a config that failed validation.
func (rl *ResearchLogger) LogConfigRejected(reasons []string) {
	rl.WithFields(logrus.Fields{
		"reasons":      reasons,
		"reason_count": len(reasons),
	}).Warn("Research config rejected")
}

// LogWeekSimulated logs per-week engine progress at debug level.
func (rl *ResearchLogger) LogWeekSimulated(weekOpen string, returnPct, equityPct float64, trades, pricedTrades int) {
	rl.WithFields(logrus.Fields{
		"week_open_utc": weekOpen,
		"return_pct":    returnPct,
		"equity_pct":    equityPct,
		"trades":        trades,
		"priced_trades": pricedTrades,
	}).Debug("Week simulated")
}
