package domain

import "time"

// StaffRole enumerates roles of human operators.
type StaffRole string

const (
	StaffRoleOwner     StaffRole = "OWNER"
	StaffRoleAdmin     StaffRole = "ADMIN"
	StaffRoleManager   StaffRole = "MANAGER"
	StaffRoleFrontDesk StaffRole = "FRONT_DESK"
)

// StaffMember is an operator of a tenant. BranchID is nil for tenant-wide staff.
type StaffMember struct {
	ID           string
	TenantID     string
	BranchID     *string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAccessBranch reports whether the staff member's scope covers the branch.
func (s *StaffMember) CanAccessBranch(tenantID, branchID string) bool {
	if s == nil || s.TenantID != tenantID {
		return false
	}
	return s.BranchID == nil || *s.BranchID == branchID
}
