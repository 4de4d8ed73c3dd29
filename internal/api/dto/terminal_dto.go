package dto

import "time"

// TerminalCreateRequest provisions a terminal for a branch.
type TerminalCreateRequest struct {
	BranchID string `json:"branch_id"`
	Name     string `json:"name"`
}

// TerminalUpdateRequest patches mutable terminal fields.
type TerminalUpdateRequest struct {
	Name     *string `json:"name"`
	BranchID *string `json:"branch_id"`
	Active   *bool   `json:"active"`
}

// TerminalResponse never includes the secret hash.
type TerminalResponse struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	BranchID   string     `json:"branch_id"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ProvisionedTerminalResponse is returned once, on create and rotate, with the plain secret.
type ProvisionedTerminalResponse struct {
	Terminal TerminalResponse `json:"terminal"`
	Secret   string           `json:"secret"`
}
