package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/events"
)

// RegisterEventSubscribers attaches operational log handlers to the dispatcher.
// Card assignments and expiries are worth a line of their own for front-desk staff.
func RegisterEventSubscribers(dispatcher events.Dispatcher, logger *zap.Logger) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dispatcher.Subscribe(domain.EventCardAssigned, func(_ context.Context, event events.Event) error {
		logger.Info("card assigned",
			append(eventFields(event), zap.Any("purpose", event.Metadata["purpose"]))...)
		return nil
	})
	dispatcher.Subscribe(domain.EventPendingAssignmentExpired, func(_ context.Context, event events.Event) error {
		logger.Info("pending assignment expired",
			append(eventFields(event), zap.Any("source", event.Metadata["source"]))...)
		return nil
	})
	dispatcher.Subscribe(domain.EventAccessDenyDisabled, func(_ context.Context, event events.Event) error {
		logger.Info("disabled card presented", eventFields(event)...)
		return nil
	})
}

func eventFields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("branch_id", event.BranchID),
	}
	if event.TerminalID != nil {
		fields = append(fields, zap.String("terminal_id", *event.TerminalID))
	}
	if event.MemberID != nil {
		fields = append(fields, zap.String("member_id", *event.MemberID))
	}
	return fields
}
