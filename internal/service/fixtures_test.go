package service

import (
	"sync"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 4, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store   *memory.Store
	tenant  string
	branch  domain.Branch
	other   domain.Branch
	member  domain.Member
	admin   *domain.StaffMember
	manager *domain.StaffMember
}

func newFixture() *fixture {
	store := memory.New()
	f := &fixture{store: store, tenant: "tenant-1"}
	f.branch = store.AddBranch(domain.Branch{TenantID: f.tenant, Name: "Downtown"})
	f.other = store.AddBranch(domain.Branch{TenantID: f.tenant, Name: "Uptown"})
	f.member = store.AddMember(domain.Member{TenantID: f.tenant, BranchID: f.branch.ID, Name: "Ada Lovelace"})
	f.admin = &domain.StaffMember{ID: "staff-admin", TenantID: f.tenant, Role: domain.StaffRoleAdmin, Active: true}
	branchID := f.branch.ID
	f.manager = &domain.StaffMember{ID: "staff-manager", TenantID: f.tenant, BranchID: &branchID, Role: domain.StaffRoleManager, Active: true}
	return f
}

func (f *fixture) terminal(active bool) *domain.Terminal {
	return &domain.Terminal{ID: "term-1", TenantID: f.tenant, BranchID: f.branch.ID, Name: "Front door", Active: active}
}
