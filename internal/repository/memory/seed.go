package memory

import (
	"github.com/google/uuid"

	"github.com/spec-kit/access-service/internal/domain"
)

// The seed helpers stand in for the collaborators that own these tables.

// AddBranch stores a branch, generating an id when empty.
func (s *Store) AddBranch(branch domain.Branch) domain.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	if branch.ID == "" {
		branch.ID = uuid.NewString()
	}
	s.st.branches[branch.ID] = branch
	return branch
}

// AddMember stores a member profile, generating an id when empty.
func (s *Store) AddMember(member domain.Member) domain.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.CardStatus == "" {
		member.CardStatus = domain.MemberCardStatusNone
	}
	s.st.members[member.ID] = member
	return member
}

// AddSubscription stores a subscription.
func (s *Store) AddSubscription(sub domain.MemberSubscription) domain.MemberSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = domain.SubscriptionStatusActive
	}
	s.st.subscriptions = append(s.st.subscriptions, sub)
	return sub
}

// AddInventoryCard stores an inventory card.
func (s *Store) AddInventoryCard(card domain.InventoryCard) domain.InventoryCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Status == "" {
		card.Status = domain.InventoryStatusAvailable
	}
	s.st.inventory[card.UID] = card
	return card
}

// AddOperationalCard stores an operational card directly, bypassing assignment.
func (s *Store) AddOperationalCard(card domain.OperationalCard) domain.OperationalCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.CardType == "" {
		card.CardType = domain.CardTypeMember
	}
	s.st.cards[card.UID] = card
	return card
}

// AddPending stores a pending assignment as-is.
func (s *Store) AddPending(pending domain.PendingMemberAssignment) domain.PendingMemberAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending.ID == "" {
		pending.ID = uuid.NewString()
	}
	s.st.pending[pending.BranchID] = pending
	return pending
}

// Events returns a copy of the audit log.
func (s *Store) Events() []domain.AccessEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AccessEvent, len(s.st.events))
	copy(out, s.st.events)
	return out
}

// OperationalCardCount returns how many operational cards exist for uid (zero or one).
func (s *Store) OperationalCardCount(uid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.cards[uid]; ok {
		return 1
	}
	return 0
}
