package repository

import (
	"context"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// OperationalCardRepository persists cards usable for access decisions.
type OperationalCardRepository interface {
	Create(ctx context.Context, card *domain.OperationalCard) error
	GetByUID(ctx context.Context, uid string) (*domain.OperationalCard, error)
	DeactivateMemberCards(ctx context.Context, memberID, exceptUID string) (int64, error)
}

// InventoryCardRepository persists pre-allocated cards.
type InventoryCardRepository interface {
	GetByUID(ctx context.Context, uid string) (*domain.InventoryCard, error)
	// LockByUID reads the card and holds a row lock until the surrounding transaction ends.
	LockByUID(ctx context.Context, uid string) (*domain.InventoryCard, error)
	IsAvailable(ctx context.Context, branchID, uid string) (bool, error)
	MarkAssigned(ctx context.Context, uid string, at time.Time) error
}

type operationalCardRepository struct {
	db DBTX
}

// NewOperationalCardRepository builds repository.
func NewOperationalCardRepository(db DBTX) OperationalCardRepository {
	return &operationalCardRepository{db: db}
}

func (r *operationalCardRepository) Create(ctx context.Context, card *domain.OperationalCard) error {
	const query = `
        INSERT INTO operational_cards (uid, branch_id, member_id, card_type, active_flag)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return mapErr(r.db.QueryRow(ctx, query,
		card.UID,
		card.BranchID,
		card.MemberID,
		card.CardType,
		card.Active,
	).Scan(&card.ID, &card.CreatedAt, &card.UpdatedAt))
}

func (r *operationalCardRepository) GetByUID(ctx context.Context, uid string) (*domain.OperationalCard, error) {
	const query = `
        SELECT id, uid, branch_id, member_id, card_type, active_flag, created_at, updated_at
        FROM operational_cards WHERE uid=$1`
	var card domain.OperationalCard
	if err := r.db.QueryRow(ctx, query, uid).Scan(
		&card.ID,
		&card.UID,
		&card.BranchID,
		&card.MemberID,
		&card.CardType,
		&card.Active,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &card, nil
}

func (r *operationalCardRepository) DeactivateMemberCards(ctx context.Context, memberID, exceptUID string) (int64, error) {
	const query = `
        UPDATE operational_cards SET active_flag=FALSE, updated_at=NOW()
        WHERE member_id=$1 AND uid<>$2 AND active_flag`
	cmd, err := r.db.Exec(ctx, query, memberID, exceptUID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

type inventoryCardRepository struct {
	db DBTX
}

// NewInventoryCardRepository builds repository.
func NewInventoryCardRepository(db DBTX) InventoryCardRepository {
	return &inventoryCardRepository{db: db}
}

const inventorySelect = `SELECT id, uid, branch_id, status, assigned_at, created_at FROM inventory_cards WHERE uid=$1`

func (r *inventoryCardRepository) GetByUID(ctx context.Context, uid string) (*domain.InventoryCard, error) {
	return r.fetch(ctx, inventorySelect, uid)
}

func (r *inventoryCardRepository) LockByUID(ctx context.Context, uid string) (*domain.InventoryCard, error) {
	return r.fetch(ctx, inventorySelect+` FOR UPDATE`, uid)
}

func (r *inventoryCardRepository) fetch(ctx context.Context, query, uid string) (*domain.InventoryCard, error) {
	var card domain.InventoryCard
	if err := r.db.QueryRow(ctx, query, uid).Scan(
		&card.ID,
		&card.UID,
		&card.BranchID,
		&card.Status,
		&card.AssignedAt,
		&card.CreatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &card, nil
}

func (r *inventoryCardRepository) IsAvailable(ctx context.Context, branchID, uid string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM inventory_cards WHERE uid=$1 AND branch_id=$2 AND status=$3
        )`
	var available bool
	if err := r.db.QueryRow(ctx, query, uid, branchID, domain.InventoryStatusAvailable).Scan(&available); err != nil {
		return false, err
	}
	return available, nil
}

func (r *inventoryCardRepository) MarkAssigned(ctx context.Context, uid string, at time.Time) error {
	const query = `
        UPDATE inventory_cards SET status=$1, assigned_at=$2
        WHERE uid=$3 AND status=$4`
	cmd, err := r.db.Exec(ctx, query, domain.InventoryStatusAssigned, at, uid, domain.InventoryStatusAvailable)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
