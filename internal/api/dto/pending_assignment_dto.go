package dto

import (
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// PendingAssignmentRequest arms a branch to bind its next unknown card to a member.
type PendingAssignmentRequest struct {
	MemberID         string                   `json:"member_id"`
	Purpose          domain.AssignmentPurpose `json:"purpose"`
	ExpiresInSeconds int                      `json:"expires_in_seconds"`
}

// PendingAssignmentResponse describes the branch's pending assignment.
type PendingAssignmentResponse struct {
	ID        string                   `json:"id"`
	BranchID  string                   `json:"branch_id"`
	MemberID  string                   `json:"member_id"`
	Purpose   domain.AssignmentPurpose `json:"purpose"`
	ExpiresAt time.Time                `json:"expires_at"`
	CreatedBy *string                  `json:"created_by"`
	CreatedAt time.Time                `json:"created_at"`
}
