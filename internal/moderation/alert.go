package moderation

import (
	"context"

	"go.uber.org/zap"
)

// Alerter surfaces consistency anomalies to operators. Alerts are distinct
// from logging: they indicate state that needs human attention, like a record
// that was both active and removed.
type Alerter interface {
	Alert(ctx context.Context, message string, fields ...zap.Field)
}

// LogAlerter is an Alerter that writes alerts to the error log. Used when no
// staff channel is configured and in tests.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a LogAlerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger.Named("alerts")}
}

func (a *LogAlerter) Alert(_ context.Context, message string, fields ...zap.Field) {
	a.logger.Error(message, fields...)
}
