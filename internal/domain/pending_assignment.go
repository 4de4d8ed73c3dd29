package domain

import "time"

// AssignmentPurpose explains why a member is waiting for a card.
type AssignmentPurpose string

const (
	AssignmentPurposeOnboard AssignmentPurpose = "ONBOARD"
	AssignmentPurposeReplace AssignmentPurpose = "REPLACE"
	AssignmentPurposeReclaim AssignmentPurpose = "RECLAIM"
)

// Valid reports whether p is a known purpose.
func (p AssignmentPurpose) Valid() bool {
	switch p {
	case AssignmentPurposeOnboard, AssignmentPurposeReplace, AssignmentPurposeReclaim:
		return true
	}
	return false
}

// PendingMemberAssignment binds the next unknown card tapped at a branch to a member.
// There is at most one per branch.
type PendingMemberAssignment struct {
	ID        string
	BranchID  string
	MemberID  string
	Purpose   AssignmentPurpose
	ExpiresAt time.Time
	CreatedBy *string
	CreatedAt time.Time
}

// Expired reports whether the assignment is past its expiry. The expiry instant itself is still valid.
func (p *PendingMemberAssignment) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
