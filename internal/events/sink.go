package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
)

// LogEventInput is one audit record to append.
type LogEventInput struct {
	BranchID   string
	TerminalID *string
	Type       domain.AccessEventType
	CardUID    *string
	MemberID   *string
	ActorID    *string
	Metadata   map[string]any
}

// Sink is the append-only audit log consumed by reporting.
type Sink interface {
	LogEvent(ctx context.Context, in LogEventInput) (*domain.AccessEvent, error)
}

// RecordingSink persists events and then publishes them to in-process subscribers.
type RecordingSink struct {
	events     repository.AccessEventRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewRecordingSink builds a sink; dispatcher may be nil.
func NewRecordingSink(events repository.AccessEventRepository, dispatcher Dispatcher, logger *zap.Logger) *RecordingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingSink{events: events, dispatcher: dispatcher, logger: logger, now: time.Now}
}

func (s *RecordingSink) LogEvent(ctx context.Context, in LogEventInput) (*domain.AccessEvent, error) {
	if in.BranchID == "" || in.Type == "" {
		return nil, fmt.Errorf("log event: branch and type are required")
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	event := &domain.AccessEvent{
		BranchID:   in.BranchID,
		TerminalID: in.TerminalID,
		Type:       in.Type,
		CardUID:    in.CardUID,
		MemberID:   in.MemberID,
		ActorID:    in.ActorID,
		Metadata:   metadata,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("log event %s: %w", in.Type, err)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, fromAccessEvent(event))
	}
	return event, nil
}
