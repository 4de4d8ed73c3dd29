package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
)

type terminalRepo struct{ base }

func (r terminalRepo) Create(_ context.Context, terminal *domain.Terminal) error {
	defer r.lock()()
	now := time.Now().UTC()
	terminal.ID = uuid.NewString()
	terminal.CreatedAt, terminal.UpdatedAt = now, now
	r.s.st.terminals[terminal.ID] = *terminal
	return nil
}

func (r terminalRepo) Update(_ context.Context, terminal *domain.Terminal) error {
	defer r.lock()()
	current, ok := r.s.st.terminals[terminal.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.BranchID = terminal.BranchID
	current.Name = terminal.Name
	current.SecretHash = terminal.SecretHash
	current.Active = terminal.Active
	current.UpdatedAt = time.Now().UTC()
	terminal.UpdatedAt = current.UpdatedAt
	r.s.st.terminals[terminal.ID] = current
	return nil
}

func (r terminalRepo) GetByID(_ context.Context, id string) (*domain.Terminal, error) {
	defer r.lock()()
	terminal, ok := r.s.st.terminals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &terminal, nil
}

func (r terminalRepo) List(_ context.Context, filter repository.TerminalFilter) ([]domain.Terminal, error) {
	defer r.lock()()
	var result []domain.Terminal
	for _, terminal := range r.s.st.terminals {
		if terminal.TenantID != filter.TenantID {
			continue
		}
		if filter.BranchID != nil && terminal.BranchID != *filter.BranchID {
			continue
		}
		if filter.Active != nil && terminal.Active != *filter.Active {
			continue
		}
		result = append(result, terminal)
	}
	slices.SortFunc(result, func(a, b domain.Terminal) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return page(result, filter.Limit, filter.Offset), nil
}

func (r terminalRepo) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	defer r.lock()()
	terminal, ok := r.s.st.terminals[id]
	if !ok {
		return nil
	}
	terminal.LastSeenAt = &at
	r.s.st.terminals[id] = terminal
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 || offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

type branchRepo struct{ base }

func (r branchRepo) GetByID(_ context.Context, id string) (*domain.Branch, error) {
	defer r.lock()()
	branch, ok := r.s.st.branches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &branch, nil
}

type cardRepo struct{ base }

func (r cardRepo) Create(_ context.Context, card *domain.OperationalCard) error {
	defer r.lock()()
	if _, exists := r.s.st.cards[card.UID]; exists {
		return repository.ErrDuplicate
	}
	now := time.Now().UTC()
	card.ID = uuid.NewString()
	card.CreatedAt, card.UpdatedAt = now, now
	r.s.st.cards[card.UID] = *card
	return nil
}

func (r cardRepo) GetByUID(_ context.Context, uid string) (*domain.OperationalCard, error) {
	defer r.lock()()
	card, ok := r.s.st.cards[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &card, nil
}

func (r cardRepo) DeactivateMemberCards(_ context.Context, memberID, exceptUID string) (int64, error) {
	defer r.lock()()
	var n int64
	for uid, card := range r.s.st.cards {
		if uid == exceptUID || !card.Active || card.MemberID == nil || *card.MemberID != memberID {
			continue
		}
		card.Active = false
		card.UpdatedAt = time.Now().UTC()
		r.s.st.cards[uid] = card
		n++
	}
	return n, nil
}

type inventoryRepo struct{ base }

func (r inventoryRepo) GetByUID(_ context.Context, uid string) (*domain.InventoryCard, error) {
	defer r.lock()()
	card, ok := r.s.st.inventory[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &card, nil
}

// LockByUID relies on InTx holding the store mutex.
func (r inventoryRepo) LockByUID(ctx context.Context, uid string) (*domain.InventoryCard, error) {
	return r.GetByUID(ctx, uid)
}

func (r inventoryRepo) IsAvailable(_ context.Context, branchID, uid string) (bool, error) {
	defer r.lock()()
	card, ok := r.s.st.inventory[uid]
	return ok && card.BranchID == branchID && card.Status == domain.InventoryStatusAvailable, nil
}

func (r inventoryRepo) MarkAssigned(_ context.Context, uid string, at time.Time) error {
	defer r.lock()()
	card, ok := r.s.st.inventory[uid]
	if !ok || card.Status != domain.InventoryStatusAvailable {
		return repository.ErrNotFound
	}
	card.Status = domain.InventoryStatusAssigned
	card.AssignedAt = &at
	r.s.st.inventory[uid] = card
	return nil
}

type pendingRepo struct{ base }

func (r pendingRepo) Upsert(_ context.Context, pending *domain.PendingMemberAssignment) error {
	defer r.lock()()
	pending.ID = uuid.NewString()
	pending.CreatedAt = time.Now().UTC()
	r.s.st.pending[pending.BranchID] = *pending
	return nil
}

func (r pendingRepo) GetByBranch(_ context.Context, branchID string) (*domain.PendingMemberAssignment, error) {
	defer r.lock()()
	pending, ok := r.s.st.pending[branchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &pending, nil
}

func (r pendingRepo) Delete(_ context.Context, branchID, id string) (int64, error) {
	defer r.lock()()
	pending, ok := r.s.st.pending[branchID]
	if !ok || pending.ID != id {
		return 0, nil
	}
	delete(r.s.st.pending, branchID)
	return 1, nil
}

func (r pendingRepo) DeleteByBranch(_ context.Context, branchID string) (int64, error) {
	defer r.lock()()
	if _, ok := r.s.st.pending[branchID]; !ok {
		return 0, nil
	}
	delete(r.s.st.pending, branchID)
	return 1, nil
}

func (r pendingRepo) DeleteExpired(_ context.Context, now time.Time) ([]domain.PendingMemberAssignment, error) {
	defer r.lock()()
	var removed []domain.PendingMemberAssignment
	for branchID, pending := range r.s.st.pending {
		if pending.ExpiresAt.Before(now) {
			removed = append(removed, pending)
			delete(r.s.st.pending, branchID)
		}
	}
	return removed, nil
}

type memberRepo struct{ base }

func (r memberRepo) GetByID(_ context.Context, id string) (*domain.Member, error) {
	defer r.lock()()
	member, ok := r.s.st.members[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &member, nil
}

func (r memberRepo) SetActiveCard(_ context.Context, memberID, uid string, at time.Time) error {
	defer r.lock()()
	member, ok := r.s.st.members[memberID]
	if !ok {
		return repository.ErrNotFound
	}
	member.CardStatus = domain.MemberCardStatusActive
	member.CardUID = &uid
	member.CardAssignedAt = &at
	r.s.st.members[memberID] = member
	return nil
}

type subscriptionRepo struct{ base }

func (r subscriptionRepo) LatestForMember(_ context.Context, memberID string) (*domain.MemberSubscription, error) {
	return r.latest(memberID, func(domain.MemberSubscription) bool { return true })
}

func (r subscriptionRepo) LatestActiveForMember(_ context.Context, memberID string) (*domain.MemberSubscription, error) {
	return r.latest(memberID, func(sub domain.MemberSubscription) bool {
		return sub.Status == domain.SubscriptionStatusActive
	})
}

func (r subscriptionRepo) latest(memberID string, keep func(domain.MemberSubscription) bool) (*domain.MemberSubscription, error) {
	defer r.lock()()
	var found *domain.MemberSubscription
	for _, sub := range r.s.st.subscriptions {
		if sub.MemberID != memberID || !keep(sub) {
			continue
		}
		if found == nil || sub.EndsAt.After(found.EndsAt) {
			found = &sub
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

type eventRepo struct{ base }

func (r eventRepo) Create(_ context.Context, event *domain.AccessEvent) error {
	defer r.lock()()
	event.ID = uuid.NewString()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.s.st.events = append(r.s.st.events, *event)
	return nil
}

func (r eventRepo) ListByBranch(_ context.Context, branchID string, since time.Time, limit int) ([]domain.AccessEvent, error) {
	defer r.lock()()
	var result []domain.AccessEvent
	for _, event := range r.s.st.events {
		if event.BranchID == branchID && !event.CreatedAt.Before(since) {
			result = append(result, event)
		}
	}
	slices.SortStableFunc(result, func(a, b domain.AccessEvent) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if limit <= 0 {
		limit = 100
	}
	return page(result, limit, 0), nil
}

type cooldownRepo struct{ base }

func (r cooldownRepo) Swap(_ context.Context, terminalID, cardUID string, at, expiresAt time.Time) (*time.Time, error) {
	defer r.lock()()
	key := terminalID + "|" + cardUID
	var previous *time.Time
	if current, ok := r.s.st.cooldowns[key]; ok && !current.ExpiresAt.Before(at) {
		last := current.LastTapAt
		previous = &last
	}
	r.s.st.cooldowns[key] = domain.TapCooldown{
		TerminalID: terminalID,
		CardUID:    cardUID,
		LastTapAt:  at,
		ExpiresAt:  expiresAt,
	}
	return previous, nil
}

func (r cooldownRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for key, cooldown := range r.s.st.cooldowns {
		if cooldown.ExpiresAt.Before(now) {
			delete(r.s.st.cooldowns, key)
			n++
		}
	}
	return n, nil
}

type staffRepo struct{ base }

func (r staffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	defer r.lock()()
	for _, existing := range r.s.st.staff {
		if existing.Email == staff.Email {
			return repository.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	staff.ID = uuid.NewString()
	staff.CreatedAt, staff.UpdatedAt = now, now
	r.s.st.staff[staff.ID] = *staff
	return nil
}

func (r staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	defer r.lock()()
	staff, ok := r.s.st.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &staff, nil
}

func (r staffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	defer r.lock()()
	for _, staff := range r.s.st.staff {
		if staff.Email == email {
			return &staff, nil
		}
	}
	return nil, repository.ErrNotFound
}
