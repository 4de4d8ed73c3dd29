package repository

import (
	"context"

	"github.com/spec-kit/access-service/internal/domain"
)

// BranchRepository reads branches owned by the tenant management collaborator.
type BranchRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Branch, error)
}

type branchRepository struct {
	db DBTX
}

// NewBranchRepository builds repository.
func NewBranchRepository(db DBTX) BranchRepository {
	return &branchRepository{db: db}
}

func (r *branchRepository) GetByID(ctx context.Context, id string) (*domain.Branch, error) {
	const query = `SELECT id, tenant_id, name FROM branches WHERE id=$1`
	var branch domain.Branch
	if err := r.db.QueryRow(ctx, query, id).Scan(&branch.ID, &branch.TenantID, &branch.Name); err != nil {
		return nil, mapErr(err)
	}
	return &branch, nil
}
