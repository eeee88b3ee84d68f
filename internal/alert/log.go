package alert

import (
	"context"

	"go.uber.org/zap"

	"call-ath-tracker/internal/domain"
)

// Log writes events to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log sink.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Name implements named.
func (l *Log) Name() string { return "log" }

// Notify logs event at info level.
func (l *Log) Notify(_ context.Context, event domain.AlertEvent) error {
	fields := []zap.Field{
		zap.String("kind", string(event.Kind)),
		zap.String("asset_id", event.AssetID),
		zap.String("network", event.Network),
		zap.String("pool", event.PoolRef),
		zap.Float64("ath_price", event.AthPrice),
		zap.Int64("ath_ts", event.AthTimestamp),
		zap.Float64("roi_pct", event.AthRoiPercent),
		zap.String("tier", string(event.AthTier)),
	}
	if event.PreviousPrice != nil {
		fields = append(fields, zap.Float64("previous_price", *event.PreviousPrice))
	}
	if event.Discrepancy != "" {
		fields = append(fields,
			zap.String("discrepancy", string(event.Discrepancy)),
			zap.Float64("relative_diff", event.RelativeDiff))
	}
	l.logger.Info("alert", fields...)
	return nil
}
