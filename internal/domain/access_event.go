package domain

import "time"

// AccessEventType tags an audit entry with the decision branch that produced it.
type AccessEventType string

const (
	EventAccessAllow              AccessEventType = "ACCESS_ALLOW"
	EventAccessDenyExpired        AccessEventType = "ACCESS_DENY_EXPIRED"
	EventAccessDenyDisabled       AccessEventType = "ACCESS_DENY_DISABLED"
	EventAccessDenyUnknown        AccessEventType = "ACCESS_DENY_UNKNOWN"
	EventCardAssigned             AccessEventType = "CARD_ASSIGNED"
	EventPendingAssignmentExpired AccessEventType = "PENDING_ASSIGNMENT_EXPIRED"
)

// AccessEvent is an append-only audit record.
type AccessEvent struct {
	ID         string
	BranchID   string
	TerminalID *string
	Type       AccessEventType
	CardUID    *string
	MemberID   *string
	ActorID    *string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// TapCooldown records the last tap of a card on a terminal.
type TapCooldown struct {
	TerminalID string
	CardUID    string
	LastTapAt  time.Time
	ExpiresAt  time.Time
}
