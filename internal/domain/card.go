package domain

import "time"

// CardType classifies operational cards.
type CardType string

const (
	CardTypeMember CardType = "MEMBER"
	CardTypeStaff  CardType = "STAFF"
)

// OperationalCard is a card UID bound to a branch and usually to a member.
type OperationalCard struct {
	ID        string
	UID       string
	BranchID  string
	MemberID  *string
	CardType  CardType
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InventoryStatus enumerates the lifecycle of a pre-allocated card.
type InventoryStatus string

const (
	InventoryStatusAvailable InventoryStatus = "AVAILABLE"
	InventoryStatusAssigned  InventoryStatus = "ASSIGNED"
)

// InventoryCard is a card UID allocated to a branch but not yet bound to a member.
type InventoryCard struct {
	ID         string
	UID        string
	BranchID   string
	Status     InventoryStatus
	AssignedAt *time.Time
	CreatedAt  time.Time
}
