package dedup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FailOpenRecorder is notified when a backend error was swallowed.
type FailOpenRecorder interface {
	IncrementDedupFailOpen()
}

// FailOpen treats backend errors as "not a duplicate" so a broken backend never blocks access.
type FailOpen struct {
	next    Deduplicator
	backend string
	logger  *zap.Logger
	metrics FailOpenRecorder
}

// NewFailOpen wraps next. metrics may be nil.
func NewFailOpen(next Deduplicator, backend string, logger *zap.Logger, metrics FailOpenRecorder) *FailOpen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailOpen{next: next, backend: backend, logger: logger, metrics: metrics}
}

func (f *FailOpen) IsDuplicateAndRecordTap(ctx context.Context, terminalID, cardUID string, cooldown time.Duration) (Result, error) {
	res, err := f.next.IsDuplicateAndRecordTap(ctx, terminalID, cardUID, cooldown)
	if err != nil {
		f.logger.Warn("tap cooldown backend failed, treating tap as new",
			zap.String("backend", f.backend),
			zap.String("terminal_id", terminalID),
			zap.Error(err))
		if f.metrics != nil {
			f.metrics.IncrementDedupFailOpen()
		}
		return Result{Cooldown: cooldown}, nil
	}
	return res, nil
}
