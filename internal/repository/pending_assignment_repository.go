package repository

import (
	"context"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// PendingAssignmentRepository persists the per-branch pending card assignment slot.
type PendingAssignmentRepository interface {
	// Upsert replaces any pending assignment already held by the branch.
	Upsert(ctx context.Context, pending *domain.PendingMemberAssignment) error
	GetByBranch(ctx context.Context, branchID string) (*domain.PendingMemberAssignment, error)
	// Delete removes the pending row id of branchID and reports whether it was still there.
	Delete(ctx context.Context, branchID, id string) (int64, error)
	DeleteByBranch(ctx context.Context, branchID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]domain.PendingMemberAssignment, error)
}

type pendingAssignmentRepository struct {
	db DBTX
}

// NewPendingAssignmentRepository builds repository.
func NewPendingAssignmentRepository(db DBTX) PendingAssignmentRepository {
	return &pendingAssignmentRepository{db: db}
}

const pendingColumns = `id, branch_id, member_id, purpose, expires_at, created_by, created_at`

func (r *pendingAssignmentRepository) Upsert(ctx context.Context, pending *domain.PendingMemberAssignment) error {
	const query = `
        INSERT INTO pending_member_assignments (branch_id, member_id, purpose, expires_at, created_by)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (branch_id) DO UPDATE
        SET id=gen_random_uuid(), member_id=EXCLUDED.member_id, purpose=EXCLUDED.purpose,
            expires_at=EXCLUDED.expires_at, created_by=EXCLUDED.created_by, created_at=NOW()
        RETURNING id, created_at`
	return mapErr(r.db.QueryRow(ctx, query,
		pending.BranchID,
		pending.MemberID,
		pending.Purpose,
		pending.ExpiresAt,
		pending.CreatedBy,
	).Scan(&pending.ID, &pending.CreatedAt))
}

func (r *pendingAssignmentRepository) GetByBranch(ctx context.Context, branchID string) (*domain.PendingMemberAssignment, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_member_assignments WHERE branch_id=$1`
	var pending domain.PendingMemberAssignment
	if err := r.db.QueryRow(ctx, query, branchID).Scan(
		&pending.ID,
		&pending.BranchID,
		&pending.MemberID,
		&pending.Purpose,
		&pending.ExpiresAt,
		&pending.CreatedBy,
		&pending.CreatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &pending, nil
}

func (r *pendingAssignmentRepository) Delete(ctx context.Context, branchID, id string) (int64, error) {
	const query = `DELETE FROM pending_member_assignments WHERE id=$1 AND branch_id=$2`
	cmd, err := r.db.Exec(ctx, query, id, branchID)
	if err != nil {
		return 0, mapErr(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *pendingAssignmentRepository) DeleteByBranch(ctx context.Context, branchID string) (int64, error) {
	const query = `DELETE FROM pending_member_assignments WHERE branch_id=$1`
	cmd, err := r.db.Exec(ctx, query, branchID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *pendingAssignmentRepository) DeleteExpired(ctx context.Context, now time.Time) ([]domain.PendingMemberAssignment, error) {
	query := `DELETE FROM pending_member_assignments WHERE expires_at < $1 RETURNING ` + pendingColumns
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PendingMemberAssignment
	for rows.Next() {
		var pending domain.PendingMemberAssignment
		if err := rows.Scan(
			&pending.ID,
			&pending.BranchID,
			&pending.MemberID,
			&pending.Purpose,
			&pending.ExpiresAt,
			&pending.CreatedBy,
			&pending.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, pending)
	}
	return result, rows.Err()
}
