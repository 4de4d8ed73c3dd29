package repository

import (
	"context"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// MemberRepository reads member profiles and maintains their card pointers.
type MemberRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	SetActiveCard(ctx context.Context, memberID, uid string, at time.Time) error
}

// SubscriptionRepository reads subscriptions owned by the billing collaborator.
type SubscriptionRepository interface {
	// LatestForMember returns the subscription with the latest end date regardless of status.
	LatestForMember(ctx context.Context, memberID string) (*domain.MemberSubscription, error)
	LatestActiveForMember(ctx context.Context, memberID string) (*domain.MemberSubscription, error)
}

type memberRepository struct {
	db DBTX
}

// NewMemberRepository builds repository.
func NewMemberRepository(db DBTX) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	const query = `
        SELECT id, tenant_id, branch_id, name, card_status, card_uid, card_assigned_at
        FROM members WHERE id=$1`
	var member domain.Member
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&member.ID,
		&member.TenantID,
		&member.BranchID,
		&member.Name,
		&member.CardStatus,
		&member.CardUID,
		&member.CardAssignedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &member, nil
}

func (r *memberRepository) SetActiveCard(ctx context.Context, memberID, uid string, at time.Time) error {
	const query = `
        UPDATE members SET card_status=$1, card_uid=$2, card_assigned_at=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query, domain.MemberCardStatusActive, uid, at, memberID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type subscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository builds repository.
func NewSubscriptionRepository(db DBTX) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) LatestForMember(ctx context.Context, memberID string) (*domain.MemberSubscription, error) {
	const query = `
        SELECT id, member_id, status, starts_at, ends_at
        FROM member_subscriptions WHERE member_id=$1
        ORDER BY ends_at DESC LIMIT 1`
	return r.fetch(ctx, query, memberID)
}

func (r *subscriptionRepository) LatestActiveForMember(ctx context.Context, memberID string) (*domain.MemberSubscription, error) {
	const query = `
        SELECT id, member_id, status, starts_at, ends_at
        FROM member_subscriptions WHERE member_id=$1 AND status=$2
        ORDER BY ends_at DESC LIMIT 1`
	return r.fetch(ctx, query, memberID, domain.SubscriptionStatusActive)
}

func (r *subscriptionRepository) fetch(ctx context.Context, query string, args ...any) (*domain.MemberSubscription, error) {
	var sub domain.MemberSubscription
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&sub.ID,
		&sub.MemberID,
		&sub.Status,
		&sub.StartsAt,
		&sub.EndsAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &sub, nil
}
