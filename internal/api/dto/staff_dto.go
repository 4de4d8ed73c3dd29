package dto

import (
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffResponse is the public view of a staff member.
type StaffResponse struct {
	ID       string           `json:"id"`
	TenantID string           `json:"tenant_id"`
	BranchID *string          `json:"branch_id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Role     domain.StaffRole `json:"role"`
	Active   bool             `json:"active"`
}

// AuthResponse carries an issued bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
