// Package memory provides in-process repositories for tests and local development.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
)

// Store keeps every table in maps guarded by one mutex. InTx holds the mutex for the whole
// unit of work and restores the previous state when fn fails.
type Store struct {
	mu sync.Mutex
	st state
}

type state struct {
	terminals     map[string]domain.Terminal
	branches      map[string]domain.Branch
	cards         map[string]domain.OperationalCard
	inventory     map[string]domain.InventoryCard
	pending       map[string]domain.PendingMemberAssignment
	members       map[string]domain.Member
	subscriptions []domain.MemberSubscription
	events        []domain.AccessEvent
	cooldowns     map[string]domain.TapCooldown
	staff         map[string]domain.StaffMember
}

// New returns an empty store.
func New() *Store {
	return &Store{st: state{
		terminals: make(map[string]domain.Terminal),
		branches:  make(map[string]domain.Branch),
		cards:     make(map[string]domain.OperationalCard),
		inventory: make(map[string]domain.InventoryCard),
		pending:   make(map[string]domain.PendingMemberAssignment),
		members:   make(map[string]domain.Member),
		cooldowns: make(map[string]domain.TapCooldown),
		staff:     make(map[string]domain.StaffMember),
	}}
}

func (st state) clone() state {
	return state{
		terminals:     maps.Clone(st.terminals),
		branches:      maps.Clone(st.branches),
		cards:         maps.Clone(st.cards),
		inventory:     maps.Clone(st.inventory),
		pending:       maps.Clone(st.pending),
		members:       maps.Clone(st.members),
		subscriptions: slices.Clone(st.subscriptions),
		events:        slices.Clone(st.events),
		cooldowns:     maps.Clone(st.cooldowns),
		staff:         maps.Clone(st.staff),
	}
}

// Repos returns repositories that lock the store per call.
func (s *Store) Repos() repository.Repositories {
	return s.repos(false)
}

// InTx serializes fn against every other store operation.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) repos(held bool) repository.Repositories {
	b := base{s: s, held: held}
	return repository.Repositories{
		Terminals:     terminalRepo{b},
		Branches:      branchRepo{b},
		Cards:         cardRepo{b},
		Inventory:     inventoryRepo{b},
		Pending:       pendingRepo{b},
		Members:       memberRepo{b},
		Subscriptions: subscriptionRepo{b},
		Events:        eventRepo{b},
		Cooldowns:     cooldownRepo{b},
		Staff:         staffRepo{b},
	}
}

type base struct {
	s    *Store
	held bool
}

func (b base) lock() func() {
	if b.held {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}
