package repository

import (
	"context"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// AccessEventRepository stores the append-only access audit log.
type AccessEventRepository interface {
	Create(ctx context.Context, event *domain.AccessEvent) error
	ListByBranch(ctx context.Context, branchID string, since time.Time, limit int) ([]domain.AccessEvent, error)
}

type accessEventRepository struct {
	db DBTX
}

// NewAccessEventRepository builds repository.
func NewAccessEventRepository(db DBTX) AccessEventRepository {
	return &accessEventRepository{db: db}
}

func (r *accessEventRepository) Create(ctx context.Context, event *domain.AccessEvent) error {
	const query = `
        INSERT INTO access_events (branch_id, terminal_id, event_type, card_uid, member_id, actor_id, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return r.db.QueryRow(ctx, query,
		event.BranchID,
		event.TerminalID,
		event.Type,
		event.CardUID,
		event.MemberID,
		event.ActorID,
		metadata,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *accessEventRepository) ListByBranch(ctx context.Context, branchID string, since time.Time, limit int) ([]domain.AccessEvent, error) {
	const query = `
        SELECT id, branch_id, terminal_id, event_type, card_uid, member_id, actor_id, metadata, created_at
        FROM access_events WHERE branch_id=$1 AND created_at >= $2
        ORDER BY created_at DESC LIMIT $3`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, query, branchID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AccessEvent
	for rows.Next() {
		var event domain.AccessEvent
		if err := rows.Scan(
			&event.ID,
			&event.BranchID,
			&event.TerminalID,
			&event.Type,
			&event.CardUID,
			&event.MemberID,
			&event.ActorID,
			&event.Metadata,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}
