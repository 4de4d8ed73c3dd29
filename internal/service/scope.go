package service

import (
	"context"
	"errors"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

// authorizeBranch loads branchID and checks it lies within the actor's tenant and branch scope.
func authorizeBranch(ctx context.Context, branches repository.BranchRepository, actor *domain.StaffMember, branchID string) (*domain.Branch, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff authentication required")
	}
	branch, err := branches.GetByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("branch", map[string]any{"branch_id": branchID})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.CanAccessBranch(branch.TenantID, branch.ID) {
		return nil, apperrors.NewForbidden("branch outside staff scope")
	}
	return branch, nil
}
