package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/access-service/internal/domain"
)

// TerminalFilter defines query params for terminal listing.
type TerminalFilter struct {
	TenantID string
	BranchID *string
	Active   *bool
	Limit    int
	Offset   int
}

// TerminalRepository handles persistence for card reader terminals.
type TerminalRepository interface {
	Create(ctx context.Context, terminal *domain.Terminal) error
	Update(ctx context.Context, terminal *domain.Terminal) error
	GetByID(ctx context.Context, id string) (*domain.Terminal, error)
	List(ctx context.Context, filter TerminalFilter) ([]domain.Terminal, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

type terminalRepository struct {
	db DBTX
}

// NewTerminalRepository instantiates the repository.
func NewTerminalRepository(db DBTX) TerminalRepository {
	return &terminalRepository{db: db}
}

const terminalColumns = `id, tenant_id, branch_id, name, secret_hash, active_flag, last_seen_at, created_at, updated_at`

func (r *terminalRepository) Create(ctx context.Context, terminal *domain.Terminal) error {
	const query = `
        INSERT INTO terminals (tenant_id, branch_id, name, secret_hash, active_flag)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`

	return mapErr(r.db.QueryRow(ctx, query,
		terminal.TenantID,
		terminal.BranchID,
		terminal.Name,
		terminal.SecretHash,
		terminal.Active,
	).Scan(&terminal.ID, &terminal.CreatedAt, &terminal.UpdatedAt))
}

func (r *terminalRepository) Update(ctx context.Context, terminal *domain.Terminal) error {
	const query = `
        UPDATE terminals
        SET branch_id=$1, name=$2, secret_hash=$3, active_flag=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`

	return mapErr(r.db.QueryRow(ctx, query,
		terminal.BranchID,
		terminal.Name,
		terminal.SecretHash,
		terminal.Active,
		terminal.ID,
	).Scan(&terminal.UpdatedAt))
}

func (r *terminalRepository) GetByID(ctx context.Context, id string) (*domain.Terminal, error) {
	query := `SELECT ` + terminalColumns + ` FROM terminals WHERE id=$1`

	var terminal domain.Terminal
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&terminal.ID,
		&terminal.TenantID,
		&terminal.BranchID,
		&terminal.Name,
		&terminal.SecretHash,
		&terminal.Active,
		&terminal.LastSeenAt,
		&terminal.CreatedAt,
		&terminal.UpdatedAt,
	); err != nil {
		return nil, mapErr(err)
	}
	return &terminal, nil
}

func (r *terminalRepository) List(ctx context.Context, filter TerminalFilter) ([]domain.Terminal, error) {
	query := `SELECT ` + terminalColumns + ` FROM terminals`
	args := []any{filter.TenantID}
	clauses := []string{"tenant_id=$1"}

	if filter.BranchID != nil {
		args = append(args, *filter.BranchID)
		clauses = append(clauses, fmt.Sprintf("branch_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	query += " WHERE " + strings.Join(clauses, " AND ")

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Terminal
	for rows.Next() {
		var terminal domain.Terminal
		if err := rows.Scan(
			&terminal.ID,
			&terminal.TenantID,
			&terminal.BranchID,
			&terminal.Name,
			&terminal.SecretHash,
			&terminal.Active,
			&terminal.LastSeenAt,
			&terminal.CreatedAt,
			&terminal.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, terminal)
	}
	return result, rows.Err()
}

func (r *terminalRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE terminals SET last_seen_at=$1 WHERE id=$2`
	_, err := r.db.Exec(ctx, query, at, id)
	return err
}
