// Package decision holds the card tap state machine as a pure function of already loaded state.
// Reads and writes belong to the caller; see service.AccessService.
package decision

import (
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// Outcome is the only thing a terminal learns about a tap.
type Outcome string

const (
	OutcomeAllow        Outcome = "ALLOW"
	OutcomeDenyExpired  Outcome = "DENY_EXPIRED"
	OutcomeDenyDisabled Outcome = "DENY_DISABLED"
	OutcomeDenyUnknown  Outcome = "DENY_UNKNOWN"
	OutcomeAssigned     Outcome = "ASSIGNED"
)

// Route is the branch a card lookup sends the evaluation down.
type Route int

const (
	// RouteMember is an active card of this branch bound to a member.
	RouteMember Route = iota
	// RouteDisabled is an inactive card of this branch.
	RouteDisabled
	// RouteUnrecognized covers missing cards, other branches' cards and active cards without a member.
	RouteUnrecognized
)

// Action is the side effect the caller must apply for a verdict.
type Action int

const (
	ActionNone Action = iota
	// ActionExpirePending deletes the stale pending assignment.
	ActionExpirePending
	// ActionAssign runs the card assignment transaction for Verdict.MemberID.
	ActionAssign
)

// Reasons recorded in event metadata.
const (
	ReasonSubscriptionEnded    = "subscription_ended"
	ReasonNoSubscription       = "no_subscription"
	ReasonNoPending            = "no_pending_assignment"
	ReasonInventoryUnavailable = "inventory_unavailable"
	ReasonAssignmentNotAvail   = "assignment_not_available"
	ReasonAssignmentConflict   = "assignment_conflict"
)

// Snapshot is the state read for one tap. Fields a route does not need may be left empty.
type Snapshot struct {
	BranchID           string
	Card               *domain.OperationalCard
	Subscription       *domain.MemberSubscription
	Pending            *domain.PendingMemberAssignment
	InventoryAvailable bool
}

// Verdict is the outcome plus the event and effect it implies.
type Verdict struct {
	Outcome   Outcome
	Event     domain.AccessEventType
	Action    Action
	MemberID  *string
	Pending   *domain.PendingMemberAssignment
	ExpiresAt *time.Time
	Reason    string
}

// Classify decides which route a looked-up card (possibly nil) takes at branchID.
func Classify(card *domain.OperationalCard, branchID string) Route {
	if card == nil || card.BranchID != branchID {
		return RouteUnrecognized
	}
	if !card.Active {
		return RouteDisabled
	}
	if card.MemberID == nil {
		return RouteUnrecognized
	}
	return RouteMember
}

// NeedsInventory reports whether the inventory check is reached for a pending assignment.
func NeedsInventory(pending *domain.PendingMemberAssignment, now time.Time) bool {
	return pending != nil && !pending.Expired(now)
}

// Decide evaluates the snapshot. It never reads the clock itself.
func Decide(s Snapshot, now time.Time) Verdict {
	switch Classify(s.Card, s.BranchID) {
	case RouteMember:
		return decideMember(s, now)
	case RouteDisabled:
		return Verdict{
			Outcome:  OutcomeDenyDisabled,
			Event:    domain.EventAccessDenyDisabled,
			MemberID: s.Card.MemberID,
		}
	default:
		return decideUnrecognized(s, now)
	}
}

func decideMember(s Snapshot, now time.Time) Verdict {
	v := Verdict{MemberID: s.Card.MemberID}
	sub := s.Subscription
	switch {
	case sub == nil:
		v.Outcome, v.Event, v.Reason = OutcomeDenyExpired, domain.EventAccessDenyExpired, ReasonNoSubscription
	case !sub.EndsAt.Before(now):
		ends := sub.EndsAt
		v.Outcome, v.Event, v.ExpiresAt = OutcomeAllow, domain.EventAccessAllow, &ends
	default:
		ends := sub.EndsAt
		v.Outcome, v.Event, v.ExpiresAt, v.Reason = OutcomeDenyExpired, domain.EventAccessDenyExpired, &ends, ReasonSubscriptionEnded
	}
	return v
}

func decideUnrecognized(s Snapshot, now time.Time) Verdict {
	pending := s.Pending
	if pending == nil {
		return NoPending()
	}
	memberID := pending.MemberID
	if pending.Expired(now) {
		return Verdict{
			Outcome:  OutcomeDenyUnknown,
			Event:    domain.EventPendingAssignmentExpired,
			Action:   ActionExpirePending,
			MemberID: &memberID,
			Pending:  pending,
		}
	}
	if !s.InventoryAvailable {
		return Verdict{
			Outcome:  OutcomeDenyUnknown,
			Event:    domain.EventAccessDenyUnknown,
			MemberID: &memberID,
			Pending:  pending,
			Reason:   ReasonInventoryUnavailable,
		}
	}
	return Verdict{
		Outcome:  OutcomeAssigned,
		Event:    domain.EventCardAssigned,
		Action:   ActionAssign,
		MemberID: &memberID,
		Pending:  pending,
	}
}

// NoPending is the verdict for an unrecognized card with no pending assignment at the branch.
func NoPending() Verdict {
	return Verdict{Outcome: OutcomeDenyUnknown, Event: domain.EventAccessDenyUnknown, Reason: ReasonNoPending}
}

// AssignmentFailed is the verdict when the assignment transaction did not commit.
func AssignmentFailed(v Verdict, reason string) Verdict {
	v.Outcome = OutcomeDenyUnknown
	v.Event = domain.EventAccessDenyUnknown
	v.Action = ActionNone
	v.Reason = reason
	return v
}
