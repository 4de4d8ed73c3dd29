package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories bundles every repository bound to the same database handle.
type Repositories struct {
	Terminals     TerminalRepository
	Branches      BranchRepository
	Cards         OperationalCardRepository
	Inventory     InventoryCardRepository
	Pending       PendingAssignmentRepository
	Members       MemberRepository
	Subscriptions SubscriptionRepository
	Events        AccessEventRepository
	Cooldowns     TapCooldownRepository
	Staff         StaffRepository
}

// Store exposes repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	// InTx runs fn inside a transaction; fn must only use the repositories it receives.
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewPostgresStore binds all repositories to the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, repos: newRepositories(pool)}
}

func newRepositories(db DBTX) Repositories {
	return Repositories{
		Terminals:     NewTerminalRepository(db),
		Branches:      NewBranchRepository(db),
		Cards:         NewOperationalCardRepository(db),
		Inventory:     NewInventoryCardRepository(db),
		Pending:       NewPendingAssignmentRepository(db),
		Members:       NewMemberRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Events:        NewAccessEventRepository(db),
		Cooldowns:     NewTapCooldownRepository(db),
		Staff:         NewStaffRepository(db),
	}
}

// Repos returns pool-bound repositories.
func (s *PostgresStore) Repos() Repositories {
	return s.repos
}

// InTx runs fn in a READ COMMITTED transaction, committing when fn returns nil.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, newRepositories(tx))
	})
}
