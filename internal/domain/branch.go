package domain

// Branch is a physical location of a tenant.
type Branch struct {
	ID       string
	TenantID string
	Name     string
}
