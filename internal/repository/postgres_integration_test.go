//go:build integration

package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/persistence"
	"github.com/spec-kit/access-service/internal/repository"
	"github.com/spec-kit/access-service/internal/service"
	"github.com/spec-kit/access-service/migrations"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	store     *repository.PostgresStore
	tenantID  string
	branchID  string
}

func TestPostgresRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("access"),
		tcpostgres.WithUsername("access"),
		tcpostgres.WithPassword("access"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.pool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)

	s.Require().NoError(persistence.RunMigrations(s.ctx, s.pool, migrations.FS, zap.NewNop()))
	// A second run must be a no-op.
	s.Require().NoError(persistence.RunMigrations(s.ctx, s.pool, migrations.FS, zap.NewNop()))
	s.store = repository.NewPostgresStore(s.pool)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE access_events, tap_cooldowns, pending_member_assignments, operational_cards,
		inventory_cards, member_subscriptions, members, terminals, staff_members, branches CASCADE`)
	s.Require().NoError(err)

	s.tenantID = "7b7a1c1e-5d8e-4a55-9a3e-0c0c8a9f0001"
	s.Require().NoError(s.pool.QueryRow(s.ctx,
		`INSERT INTO branches (tenant_id, name) VALUES ($1, 'Downtown') RETURNING id`, s.tenantID).Scan(&s.branchID))
}

func (s *PostgresSuite) insertMember(name string) string {
	var id string
	s.Require().NoError(s.pool.QueryRow(s.ctx,
		`INSERT INTO members (tenant_id, branch_id, name) VALUES ($1, $2, $3) RETURNING id`,
		s.tenantID, s.branchID, name).Scan(&id))
	return id
}

func (s *PostgresSuite) insertInventory(uid string) {
	_, err := s.pool.Exec(s.ctx, `INSERT INTO inventory_cards (uid, branch_id) VALUES ($1, $2)`, uid, s.branchID)
	s.Require().NoError(err)
}

func (s *PostgresSuite) TestTerminalRoundTrip() {
	repos := s.store.Repos()
	terminal := &domain.Terminal{TenantID: s.tenantID, BranchID: s.branchID, Name: "Front door", SecretHash: "hash", Active: true}
	s.Require().NoError(repos.Terminals.Create(s.ctx, terminal))
	s.NotEmpty(terminal.ID)

	seen := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(repos.Terminals.TouchLastSeen(s.ctx, terminal.ID, seen))

	loaded, err := repos.Terminals.GetByID(s.ctx, terminal.ID)
	s.Require().NoError(err)
	s.Equal("Front door", loaded.Name)
	s.Require().NotNil(loaded.LastSeenAt)
	s.True(seen.Equal(*loaded.LastSeenAt))

	_, err = repos.Terminals.GetByID(s.ctx, "00000000-0000-0000-0000-000000000000")
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *PostgresSuite) TestAssignCardCommitsAllSteps() {
	memberID := s.insertMember("Ada Lovelace")
	s.insertInventory("04AABBCC")
	repos := s.store.Repos()
	s.Require().NoError(repos.Pending.Upsert(s.ctx, &domain.PendingMemberAssignment{
		BranchID:  s.branchID,
		MemberID:  memberID,
		Purpose:   domain.AssignmentPurposeOnboard,
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	assigner := service.NewCardAssignmentService(s.store, zap.NewNop())
	res, err := assigner.AssignCard(s.ctx, service.AssignCardInput{
		BranchID: s.branchID,
		MemberID: memberID,
		CardUID:  "04AABBCC",
		Purpose:  domain.AssignmentPurposeOnboard,
	})
	s.Require().NoError(err)
	s.Equal(memberID, res.MemberID)

	card, err := repos.Cards.GetByUID(s.ctx, "04AABBCC")
	s.Require().NoError(err)
	s.True(card.Active)
	s.Equal(memberID, *card.MemberID)

	inv, err := repos.Inventory.GetByUID(s.ctx, "04AABBCC")
	s.Require().NoError(err)
	s.Equal(domain.InventoryStatusAssigned, inv.Status)

	member, err := repos.Members.GetByID(s.ctx, memberID)
	s.Require().NoError(err)
	s.Equal(domain.MemberCardStatusActive, member.CardStatus)

	_, err = repos.Pending.GetByBranch(s.ctx, s.branchID)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *PostgresSuite) TestConcurrentAssignmentHasOneWinner() {
	first := s.insertMember("Ada Lovelace")
	second := s.insertMember("Grace Hopper")
	s.insertInventory("CONTESTED")
	assigner := service.NewCardAssignmentService(s.store, zap.NewNop())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for _, memberID := range []string{first, second} {
		wg.Add(1)
		go func(memberID string) {
			defer wg.Done()
			_, err := assigner.AssignCard(s.ctx, service.AssignCardInput{
				BranchID: s.branchID,
				MemberID: memberID,
				CardUID:  "CONTESTED",
				Purpose:  domain.AssignmentPurposeOnboard,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(memberID)
	}
	wg.Wait()

	s.Equal(1, successes)
	s.Require().Len(failures, 1)
	s.True(errors.Is(failures[0], service.ErrCardNotAvailable) || errors.Is(failures[0], service.ErrAssignmentConflict))
}

func (s *PostgresSuite) TestConcurrentTapsShareOnePendingSlot() {
	memberID := s.insertMember("Ada Lovelace")
	s.insertInventory("CARD-A")
	s.insertInventory("CARD-B")
	pending := &domain.PendingMemberAssignment{
		BranchID:  s.branchID,
		MemberID:  memberID,
		Purpose:   domain.AssignmentPurposeOnboard,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	s.Require().NoError(s.store.Repos().Pending.Upsert(s.ctx, pending))
	assigner := service.NewCardAssignmentService(s.store, zap.NewNop())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []error
	)
	for _, uid := range []string{"CARD-A", "CARD-B"} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			_, err := assigner.AssignCard(s.ctx, service.AssignCardInput{
				BranchID:  s.branchID,
				MemberID:  memberID,
				CardUID:   uid,
				Purpose:   domain.AssignmentPurposeOnboard,
				PendingID: pending.ID,
			})
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()

	s.Require().Len(failures, 1)
	s.ErrorIs(failures[0], service.ErrPendingConsumed)

	var cards int
	s.Require().NoError(s.pool.QueryRow(s.ctx, `SELECT count(*) FROM operational_cards WHERE member_id=$1`, memberID).Scan(&cards))
	s.Equal(1, cards)
}

func (s *PostgresSuite) TestCooldownSwapSlides() {
	cooldowns := s.store.Repos().Cooldowns
	terminalID := "7b7a1c1e-5d8e-4a55-9a3e-0c0c8a9f0002"
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	prev, err := cooldowns.Swap(s.ctx, terminalID, "04AABBCC", t0, t0.Add(5*time.Second))
	s.Require().NoError(err)
	s.Nil(prev)

	t1 := t0.Add(time.Second)
	prev, err = cooldowns.Swap(s.ctx, terminalID, "04AABBCC", t1, t1.Add(5*time.Second))
	s.Require().NoError(err)
	s.Require().NotNil(prev)
	s.True(t0.Equal(*prev))

	t2 := t1.Add(time.Minute)
	prev, err = cooldowns.Swap(s.ctx, terminalID, "04AABBCC", t2, t2.Add(5*time.Second))
	s.Require().NoError(err)
	s.Nil(prev, "an expired record is not a previous tap")

	n, err := cooldowns.DeleteExpired(s.ctx, t2.Add(time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)
}

func (s *PostgresSuite) TestEventsPersistMetadata() {
	terminalID := "7b7a1c1e-5d8e-4a55-9a3e-0c0c8a9f0003"
	uid := "04AABBCC"
	event := &domain.AccessEvent{
		BranchID:   s.branchID,
		TerminalID: &terminalID,
		Type:       domain.EventAccessDenyUnknown,
		CardUID:    &uid,
		Metadata:   map[string]any{"reason": "no_pending_assignment"},
	}
	s.Require().NoError(s.store.Repos().Events.Create(s.ctx, event))
	s.NotEmpty(event.ID)

	var reason string
	s.Require().NoError(s.pool.QueryRow(s.ctx,
		`SELECT metadata->>'reason' FROM access_events WHERE id = $1`, event.ID).Scan(&reason))
	s.Equal("no_pending_assignment", reason)
}
