package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/access-service/internal/decision"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/events"
	"github.com/spec-kit/access-service/internal/repository"
)

type AccessServiceSuite struct {
	suite.Suite
	f        *fixture
	clock    *testClock
	assigner *CardAssignmentService
	svc      *AccessService
	terminal *domain.Terminal
}

func (s *AccessServiceSuite) SetupTest() {
	s.f = newFixture()
	s.clock = newTestClock()
	s.assigner = NewCardAssignmentService(s.f.store, nil)
	s.assigner.now = s.clock.Now
	s.svc = NewAccessService(AccessDependencies{
		Store:    s.f.store,
		Assigner: s.assigner,
		Sink:     events.NewRecordingSink(s.f.store.Repos().Events, nil, nil),
	})
	s.svc.now = s.clock.Now
	s.terminal = s.f.terminal(true)
}

func (s *AccessServiceSuite) activeCard(uid string, active bool) {
	memberID := s.f.member.ID
	s.f.store.AddOperationalCard(domain.OperationalCard{UID: uid, BranchID: s.f.branch.ID, MemberID: &memberID, Active: active})
}

func (s *AccessServiceSuite) subscription(ends time.Time) {
	s.f.store.AddSubscription(domain.MemberSubscription{MemberID: s.f.member.ID, StartsAt: ends.AddDate(0, -1, 0), EndsAt: ends})
}

func (s *AccessServiceSuite) check(uid string) *CheckResult {
	res, err := s.svc.Check(context.Background(), s.terminal, uid)
	s.Require().NoError(err)
	return res
}

func (s *AccessServiceSuite) singleEvent() domain.AccessEvent {
	evs := s.f.store.Events()
	s.Require().Len(evs, 1)
	return evs[0]
}

func (s *AccessServiceSuite) TestAllowWithSubscriptionEndingTomorrow() {
	s.activeCard("UID1", true)
	tomorrow := s.clock.Now().Add(24 * time.Hour)
	s.subscription(tomorrow)

	res := s.check("UID1")
	s.Equal(decision.OutcomeAllow, res.Result)
	s.Require().NotNil(res.MemberName)
	s.Equal("Ada Lovelace", *res.MemberName)
	s.Require().NotNil(res.ExpiresAt)
	s.Equal(tomorrow.Format("2006-01-02"), res.ExpiresAt.Format("2006-01-02"))

	ev := s.singleEvent()
	s.Equal(domain.EventAccessAllow, ev.Type)
	s.Equal(s.terminal.ID, *ev.TerminalID)
	s.Equal("UID1", *ev.CardUID)
	s.Equal(s.f.member.ID, *ev.MemberID)
}

func (s *AccessServiceSuite) TestLatestSubscriptionWins() {
	s.activeCard("UID1", true)
	s.subscription(s.clock.Now().Add(48 * time.Hour))
	s.subscription(s.clock.Now().Add(-48 * time.Hour))

	s.Equal(decision.OutcomeAllow, s.check("UID1").Result)
}

func (s *AccessServiceSuite) TestDenyExpiredWithSubscriptionEndedYesterday() {
	s.activeCard("UID1", true)
	s.subscription(s.clock.Now().Add(-24 * time.Hour))

	res := s.check("UID1")
	s.Equal(decision.OutcomeDenyExpired, res.Result)
	s.Nil(res.MemberName)
	s.Nil(res.ExpiresAt)
	s.Equal(domain.EventAccessDenyExpired, s.singleEvent().Type)
}

func (s *AccessServiceSuite) TestDenyDisabled() {
	s.activeCard("UID1", false)
	s.subscription(s.clock.Now().Add(24 * time.Hour))

	s.Equal(decision.OutcomeDenyDisabled, s.check("UID1").Result)
	s.Equal(domain.EventAccessDenyDisabled, s.singleEvent().Type)
}

func (s *AccessServiceSuite) TestDenyUnknownWithoutPending() {
	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-UNKNOWN").Result)
	ev := s.singleEvent()
	s.Equal(domain.EventAccessDenyUnknown, ev.Type)
	s.Equal(decision.ReasonNoPending, ev.Metadata["reason"])
}

func (s *AccessServiceSuite) TestAssignsUnknownCardFromPending() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.branch.ID})
	creator := s.f.admin.ID
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(10 * time.Minute), CreatedBy: &creator,
	})
	ends := s.clock.Now().Add(30 * 24 * time.Hour)
	s.subscription(ends)

	res := s.check("UID-NEW")
	s.Equal(decision.OutcomeAssigned, res.Result)
	s.Equal("Ada Lovelace", *res.MemberName)
	s.Require().NotNil(res.ExpiresAt)
	s.True(ends.Equal(*res.ExpiresAt))

	ctx := context.Background()
	repos := s.f.store.Repos()
	card, err := repos.Cards.GetByUID(ctx, "UID-NEW")
	s.Require().NoError(err)
	s.Equal(s.f.member.ID, *card.MemberID)
	inv, err := repos.Inventory.GetByUID(ctx, "UID-NEW")
	s.Require().NoError(err)
	s.Equal(domain.InventoryStatusAssigned, inv.Status)
	_, err = repos.Pending.GetByBranch(ctx, s.f.branch.ID)
	s.ErrorIs(err, repository.ErrNotFound)

	ev := s.singleEvent()
	s.Equal(domain.EventCardAssigned, ev.Type)
	s.Equal(creator, *ev.ActorID)

	// The new card is now recognized.
	s.Equal(decision.OutcomeAllow, s.check("UID-NEW").Result)
}

func (s *AccessServiceSuite) TestPendingExpiringExactlyNowIsStillValid() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.branch.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now(),
	})

	res := s.check("UID-NEW")
	s.Equal(decision.OutcomeAssigned, res.Result)
	s.Nil(res.ExpiresAt, "member has no active subscription")
}

func (s *AccessServiceSuite) TestExpiredPendingIsDeleted() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.branch.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(-time.Second),
	})

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-NEW").Result)
	_, err := s.f.store.Repos().Pending.GetByBranch(context.Background(), s.f.branch.ID)
	s.ErrorIs(err, repository.ErrNotFound)

	ev := s.singleEvent()
	s.Equal(domain.EventPendingAssignmentExpired, ev.Type)
	s.Equal("tap", ev.Metadata["source"])
	s.Equal(0, s.f.store.OperationalCardCount("UID-NEW"))
}

func (s *AccessServiceSuite) TestInventoryOfAnotherBranchIsUnknown() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.other.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(time.Minute),
	})

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-NEW").Result)
	s.Equal(decision.ReasonInventoryUnavailable, s.singleEvent().Metadata["reason"])
	_, err := s.f.store.Repos().Pending.GetByBranch(context.Background(), s.f.branch.ID)
	s.NoError(err, "pending assignment kept")
}

func (s *AccessServiceSuite) TestCardOfAnotherBranchIsUnrecognized() {
	memberID := s.f.member.ID
	s.f.store.AddOperationalCard(domain.OperationalCard{UID: "UID1", BranchID: s.f.other.ID, MemberID: &memberID, Active: true})
	s.subscription(s.clock.Now().Add(time.Hour))

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID1").Result)
}

func (s *AccessServiceSuite) TestAssignmentConflictIsRetriedOnceThenDenied() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.branch.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(time.Minute),
	})
	conflicting := &scriptedAssigner{err: ErrAssignmentConflict}
	s.svc.assigner = conflicting

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-NEW").Result)
	s.Equal(2, conflicting.calls)
	ev := s.singleEvent()
	s.Equal(domain.EventAccessDenyUnknown, ev.Type)
	s.Equal(decision.ReasonAssignmentConflict, ev.Metadata["reason"])
}

func (s *AccessServiceSuite) TestAssignmentNotAvailableIsDenied() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-NEW", BranchID: s.f.branch.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(time.Minute),
	})
	lost := &scriptedAssigner{err: ErrCardNotAvailable}
	s.svc.assigner = lost

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-NEW").Result)
	s.Equal(1, lost.calls)
	s.Equal(decision.ReasonAssignmentNotAvail, s.singleEvent().Metadata["reason"])
}

func (s *AccessServiceSuite) TestConcurrentTapsConsumePendingOnce() {
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-A", BranchID: s.f.branch.ID})
	s.f.store.AddInventoryCard(domain.InventoryCard{UID: "UID-B", BranchID: s.f.branch.ID})
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(time.Minute),
	})

	// Both taps read the same pending assignment before either assigns.
	gate := &inventoryGate{}
	gate.arrived.Add(2)
	s.svc.store = gatedStore{Store: s.f.store, gate: gate}

	uids := []string{"UID-A", "UID-B"}
	results := make([]decision.Outcome, len(uids))
	var wg sync.WaitGroup
	for i, uid := range uids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.svc.Check(context.Background(), s.terminal, uid)
			s.NoError(err)
			if res != nil {
				results[i] = res.Result
			}
		}()
	}
	wg.Wait()

	s.ElementsMatch([]decision.Outcome{decision.OutcomeAssigned, decision.OutcomeDenyUnknown}, results)
	s.Equal(1, s.f.store.OperationalCardCount("UID-A")+s.f.store.OperationalCardCount("UID-B"))

	var assigned, denied int
	for _, ev := range s.f.store.Events() {
		switch ev.Type {
		case domain.EventCardAssigned:
			assigned++
		case domain.EventAccessDenyUnknown:
			denied++
			s.Equal(decision.ReasonNoPending, ev.Metadata["reason"])
		}
	}
	s.Equal(1, assigned)
	s.Equal(1, denied)
}

func (s *AccessServiceSuite) TestExpiredPendingRemovedConcurrentlyLogsOneDenial() {
	s.f.store.AddPending(domain.PendingMemberAssignment{
		BranchID: s.f.branch.ID, MemberID: s.f.member.ID, Purpose: domain.AssignmentPurposeOnboard,
		ExpiresAt: s.clock.Now().Add(-time.Second),
	})
	repos := s.f.store.Repos()
	// The sweeper removes the row between the tap's read and its delete.
	s.svc.store = sweptStore{Store: s.f.store, sweep: func(ctx context.Context) {
		_, err := repos.Pending.DeleteExpired(ctx, s.clock.Now())
		s.Require().NoError(err)
	}}

	s.Equal(decision.OutcomeDenyUnknown, s.check("UID-NEW").Result)
	ev := s.singleEvent()
	s.Equal(domain.EventAccessDenyUnknown, ev.Type)
	s.Equal(decision.ReasonNoPending, ev.Metadata["reason"])
	s.Nil(ev.MemberID)
}

func (s *AccessServiceSuite) TestSinkFailureDoesNotChangeDecision() {
	s.activeCard("UID1", true)
	s.subscription(s.clock.Now().Add(time.Hour))
	s.svc.sink = failingSink{}

	s.Equal(decision.OutcomeAllow, s.check("UID1").Result)
}

func (s *AccessServiceSuite) TestPing() {
	res, err := s.svc.Ping(context.Background(), s.terminal)
	s.Require().NoError(err)
	s.Equal(s.terminal.ID, res.ID)
	s.Equal("Front door", res.Name)
	s.Equal(s.f.branch.ID, res.BranchID)
	s.Equal("Downtown", res.BranchName)
	s.Empty(s.f.store.Events())
}

func TestAccessServiceSuite(t *testing.T) {
	suite.Run(t, new(AccessServiceSuite))
}

type scriptedAssigner struct {
	err   error
	calls int
}

func (a *scriptedAssigner) AssignCard(context.Context, AssignCardInput) (*AssignCardResult, error) {
	a.calls++
	return nil, a.err
}

type failingSink struct{}

func (failingSink) LogEvent(context.Context, events.LogEventInput) (*domain.AccessEvent, error) {
	return nil, errors.New("audit store unavailable")
}

func TestCheckIsDeterministicForFixedState(t *testing.T) {
	f := newFixture()
	memberID := f.member.ID
	f.store.AddOperationalCard(domain.OperationalCard{UID: "UID1", BranchID: f.branch.ID, MemberID: &memberID, Active: true})
	clock := newTestClock()
	f.store.AddSubscription(domain.MemberSubscription{MemberID: memberID, EndsAt: clock.Now().Add(time.Hour)})

	svc := NewAccessService(AccessDependencies{Store: f.store, Assigner: NewCardAssignmentService(f.store, nil), Sink: failingSink{}})
	svc.now = clock.Now
	for range 10 {
		res, err := svc.Check(context.Background(), f.terminal(true), "UID1")
		assert.NoError(t, err)
		assert.Equal(t, decision.OutcomeAllow, res.Result)
	}
}

type inventoryGate struct {
	arrived sync.WaitGroup
}

type gatedStore struct {
	repository.Store
	gate *inventoryGate
}

func (g gatedStore) Repos() repository.Repositories {
	repos := g.Store.Repos()
	repos.Inventory = gatedInventory{InventoryCardRepository: repos.Inventory, gate: g.gate}
	return repos
}

type gatedInventory struct {
	repository.InventoryCardRepository
	gate *inventoryGate
}

func (g gatedInventory) IsAvailable(ctx context.Context, branchID, uid string) (bool, error) {
	g.gate.arrived.Done()
	g.gate.arrived.Wait()
	return g.InventoryCardRepository.IsAvailable(ctx, branchID, uid)
}

type sweptStore struct {
	repository.Store
	sweep func(ctx context.Context)
}

func (s sweptStore) Repos() repository.Repositories {
	repos := s.Store.Repos()
	repos.Pending = sweptPending{PendingAssignmentRepository: repos.Pending, sweep: s.sweep}
	return repos
}

type sweptPending struct {
	repository.PendingAssignmentRepository
	sweep func(ctx context.Context)
}

func (p sweptPending) GetByBranch(ctx context.Context, branchID string) (*domain.PendingMemberAssignment, error) {
	pending, err := p.PendingAssignmentRepository.GetByBranch(ctx, branchID)
	if err == nil {
		p.sweep(ctx)
	}
	return pending, err
}
