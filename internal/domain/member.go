package domain

import "time"

// MemberCardStatus tracks the card pointer on a member profile.
type MemberCardStatus string

const (
	MemberCardStatusNone     MemberCardStatus = "NONE"
	MemberCardStatusActive   MemberCardStatus = "ACTIVE"
	MemberCardStatusDisabled MemberCardStatus = "DISABLED"
)

// Member is the subset of the member profile used by access control.
type Member struct {
	ID             string
	TenantID       string
	BranchID       string
	Name           string
	CardStatus     MemberCardStatus
	CardUID        *string
	CardAssignedAt *time.Time
}

// SubscriptionStatus mirrors the billing collaborator's subscription states.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

// MemberSubscription is read-only here; it is owned by the billing collaborator.
type MemberSubscription struct {
	ID       string
	MemberID string
	Status   SubscriptionStatus
	StartsAt time.Time
	EndsAt   time.Time
}
