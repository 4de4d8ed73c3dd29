package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

// TerminalCacheInvalidator drops cached validations for a terminal.
type TerminalCacheInvalidator interface {
	Forget(terminalID string)
}

// TerminalAdminService provisions card readers for staff administrators.
type TerminalAdminService struct {
	terminals repository.TerminalRepository
	branches  repository.BranchRepository
	hasher    auth.SecretHasher
	cache     TerminalCacheInvalidator
	logger    *zap.Logger
}

// TerminalAdminDependencies bundles collaborators for terminal administration.
type TerminalAdminDependencies struct {
	TerminalRepo repository.TerminalRepository
	BranchRepo   repository.BranchRepository
	Hasher       auth.SecretHasher
	Cache        TerminalCacheInvalidator
	Logger       *zap.Logger
}

// TerminalListFilters define listing parameters.
type TerminalListFilters struct {
	BranchID *string
	Active   *bool
	Limit    int
	Offset   int
}

// TerminalCreateInput describes a new terminal.
type TerminalCreateInput struct {
	BranchID string
	Name     string
}

// TerminalUpdateInput carries optional changes.
type TerminalUpdateInput struct {
	Name     *string
	BranchID *string
	Active   *bool
}

// ProvisionedTerminal pairs a terminal with its plain secret, which is never retrievable again.
type ProvisionedTerminal struct {
	Terminal *domain.Terminal
	Secret   string
}

// NewTerminalAdminService constructs the service.
func NewTerminalAdminService(deps TerminalAdminDependencies) *TerminalAdminService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalAdminService{
		terminals: deps.TerminalRepo,
		branches:  deps.BranchRepo,
		hasher:    deps.Hasher,
		cache:     deps.Cache,
		logger:    logger,
	}
}

// List returns terminals of the actor's tenant; branch-bound staff only see their branch.
func (s *TerminalAdminService) List(ctx context.Context, actor *domain.StaffMember, filters TerminalListFilters) ([]domain.Terminal, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff authentication required")
	}
	branchID := filters.BranchID
	if actor.BranchID != nil {
		if branchID != nil && *branchID != *actor.BranchID {
			return nil, apperrors.NewForbidden("branch outside staff scope")
		}
		branchID = actor.BranchID
	}
	terminals, err := s.terminals.List(ctx, repository.TerminalFilter{
		TenantID: actor.TenantID,
		BranchID: branchID,
		Active:   filters.Active,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return terminals, nil
}

// Create provisions an active terminal with a fresh secret.
func (s *TerminalAdminService) Create(ctx context.Context, actor *domain.StaffMember, in TerminalCreateInput) (*ProvisionedTerminal, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", nil)
	}
	branch, err := authorizeBranch(ctx, s.branches, actor, in.BranchID)
	if err != nil {
		return nil, err
	}

	raw, encoded, err := auth.GenerateTerminalSecret()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	terminal := &domain.Terminal{
		TenantID:   branch.TenantID,
		BranchID:   branch.ID,
		Name:       name,
		SecretHash: hash,
		Active:     true,
	}
	if err := s.terminals.Create(ctx, terminal); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("terminal provisioned",
		zap.String("terminal_id", terminal.ID),
		zap.String("branch_id", terminal.BranchID),
		zap.String("actor_id", actor.ID))
	return &ProvisionedTerminal{Terminal: terminal, Secret: encoded}, nil
}

// Update renames, moves or (de)activates a terminal.
func (s *TerminalAdminService) Update(ctx context.Context, actor *domain.StaffMember, id string, in TerminalUpdateInput) (*domain.Terminal, error) {
	terminal, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", nil)
		}
		terminal.Name = name
	}
	if in.BranchID != nil && *in.BranchID != terminal.BranchID {
		branch, err := authorizeBranch(ctx, s.branches, actor, *in.BranchID)
		if err != nil {
			return nil, err
		}
		if branch.TenantID != terminal.TenantID {
			return nil, apperrors.NewForbidden("branch outside terminal tenant")
		}
		terminal.BranchID = branch.ID
	}
	if in.Active != nil {
		terminal.Active = *in.Active
	}

	if err := s.terminals.Update(ctx, terminal); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.forget(terminal.ID)
	return terminal, nil
}

// RotateSecret replaces the terminal secret. Cached validations of the old secret are dropped.
func (s *TerminalAdminService) RotateSecret(ctx context.Context, actor *domain.StaffMember, id string) (*ProvisionedTerminal, error) {
	terminal, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	raw, encoded, err := auth.GenerateTerminalSecret()
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	terminal.SecretHash = hash
	if err := s.terminals.Update(ctx, terminal); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.forget(terminal.ID)
	s.logger.Info("terminal secret rotated", zap.String("terminal_id", terminal.ID), zap.String("actor_id", actor.ID))
	return &ProvisionedTerminal{Terminal: terminal, Secret: encoded}, nil
}

func (s *TerminalAdminService) load(ctx context.Context, actor *domain.StaffMember, id string) (*domain.Terminal, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff authentication required")
	}
	terminal, err := s.terminals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("terminal", map[string]any{"terminal_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if !actor.CanAccessBranch(terminal.TenantID, terminal.BranchID) {
		// Terminals of other tenants are indistinguishable from missing ones.
		return nil, apperrors.NewNotFound("terminal", map[string]any{"terminal_id": id})
	}
	return terminal, nil
}

func (s *TerminalAdminService) forget(id string) {
	if s.cache != nil {
		s.cache.Forget(id)
	}
}
