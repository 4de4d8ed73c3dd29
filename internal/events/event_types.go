package events

import (
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// Event is the published form of a persisted AccessEvent.
type Event struct {
	ID         string                 `json:"id"`
	Type       domain.AccessEventType `json:"type"`
	BranchID   string                 `json:"branch_id"`
	TerminalID *string                `json:"terminal_id,omitempty"`
	CardUID    *string                `json:"card_uid,omitempty"`
	MemberID   *string                `json:"member_id,omitempty"`
	ActorID    *string                `json:"actor_id,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
}

// AllTypes lists every event type a Sink may receive.
var AllTypes = []domain.AccessEventType{
	domain.EventAccessAllow,
	domain.EventAccessDenyExpired,
	domain.EventAccessDenyDisabled,
	domain.EventAccessDenyUnknown,
	domain.EventCardAssigned,
	domain.EventPendingAssignmentExpired,
}

func fromAccessEvent(e *domain.AccessEvent) Event {
	return Event{
		ID:         e.ID,
		Type:       e.Type,
		BranchID:   e.BranchID,
		TerminalID: e.TerminalID,
		CardUID:    e.CardUID,
		MemberID:   e.MemberID,
		ActorID:    e.ActorID,
		Timestamp:  e.CreatedAt,
		Metadata:   e.Metadata,
	}
}
