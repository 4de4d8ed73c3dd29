package domain

import "time"

// Terminal is a physical card reader provisioned for a branch.
type Terminal struct {
	ID         string
	TenantID   string
	BranchID   string
	Name       string
	SecretHash string
	Active     bool
	LastSeenAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
