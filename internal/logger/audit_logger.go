// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides an audit trail of persisted research runs.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogRunPersisted records a run row being written.
func (al *AuditLogger) LogRunPersisted(runID, configHash, status, store string, createdAt time.Time) {
	al.WithFields(logrus.Fields{
		"run_id":      runID,
		"config_hash": configHash,
		"status":      status,
		"store":       store,
		"timestamp":   createdAt.Unix(),
	}).Info("Research run persisted")
}

// LogTrailProfileResolved records adaptive trailing parameters substituted into a config.
func (al *AuditLogger) LogTrailProfileResolved(startPct, offsetPct float64, samples int, cacheHit bool) {
	al.WithFields(logrus.Fields{
		"start_pct":  startPct,
		"offset_pct": offsetPct,
		"samples":    samples,
		"cache_hit":  cacheHit,
	}).Info("Adaptive trail profile resolved")
}
