package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/events"
	"github.com/spec-kit/access-service/internal/observability"
	"github.com/spec-kit/access-service/internal/repository"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

const (
	defaultPendingTTL = 15 * time.Minute
	maxPendingTTL     = 24 * time.Hour
)

// PendingAssignmentService manages the per-branch queue slot that binds the next unknown card.
type PendingAssignmentService struct {
	store   repository.Store
	sink    events.Sink
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// PendingAssignmentDependencies bundles collaborators for pending assignment management.
type PendingAssignmentDependencies struct {
	Store   repository.Store
	Sink    events.Sink
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// PendingUpsertInput describes who gets the next card tapped at a branch.
type PendingUpsertInput struct {
	MemberID  string
	Purpose   domain.AssignmentPurpose
	ExpiresIn time.Duration
}

// NewPendingAssignmentService constructs the service.
func NewPendingAssignmentService(deps PendingAssignmentDependencies) *PendingAssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingAssignmentService{
		store:   deps.Store,
		sink:    deps.Sink,
		logger:  logger,
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

// Upsert replaces the branch's pending assignment.
func (s *PendingAssignmentService) Upsert(ctx context.Context, actor *domain.StaffMember, branchID string, in PendingUpsertInput) (*domain.PendingMemberAssignment, error) {
	repos := s.store.Repos()
	branch, err := authorizeBranch(ctx, repos.Branches, actor, branchID)
	if err != nil {
		return nil, err
	}
	if in.Purpose == "" {
		in.Purpose = domain.AssignmentPurposeOnboard
	}
	if !in.Purpose.Valid() {
		return nil, apperrors.NewValidationError("invalid purpose", map[string]any{"purpose": in.Purpose})
	}
	ttl := in.ExpiresIn
	if ttl == 0 {
		ttl = defaultPendingTTL
	}
	if ttl < 0 || ttl > maxPendingTTL {
		return nil, apperrors.NewValidationError("expiry must be within 24 hours", map[string]any{"expires_in_seconds": int64(ttl.Seconds())})
	}

	member, err := repos.Members.GetByID(ctx, in.MemberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("member", map[string]any{"member_id": in.MemberID})
		}
		return nil, apperrors.MapError(err)
	}
	if member.TenantID != branch.TenantID {
		return nil, apperrors.NewNotFound("member", map[string]any{"member_id": in.MemberID})
	}

	actorID := actor.ID
	pending := &domain.PendingMemberAssignment{
		BranchID:  branch.ID,
		MemberID:  member.ID,
		Purpose:   in.Purpose,
		ExpiresAt: s.now().UTC().Add(ttl),
		CreatedBy: &actorID,
	}
	if err := repos.Pending.Upsert(ctx, pending); err != nil {
		return nil, apperrors.MapError(err)
	}
	return pending, nil
}

// Get returns the branch's pending assignment.
func (s *PendingAssignmentService) Get(ctx context.Context, actor *domain.StaffMember, branchID string) (*domain.PendingMemberAssignment, error) {
	repos := s.store.Repos()
	if _, err := authorizeBranch(ctx, repos.Branches, actor, branchID); err != nil {
		return nil, err
	}
	pending, err := repos.Pending.GetByBranch(ctx, branchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("pending assignment", map[string]any{"branch_id": branchID})
		}
		return nil, apperrors.MapError(err)
	}
	return pending, nil
}

// Cancel removes the branch's pending assignment.
func (s *PendingAssignmentService) Cancel(ctx context.Context, actor *domain.StaffMember, branchID string) error {
	repos := s.store.Repos()
	if _, err := authorizeBranch(ctx, repos.Branches, actor, branchID); err != nil {
		return err
	}
	n, err := repos.Pending.DeleteByBranch(ctx, branchID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if n == 0 {
		return apperrors.NewNotFound("pending assignment", map[string]any{"branch_id": branchID})
	}
	return nil
}

// SweepExpired deletes expired pending assignments and logs one expiry event per row.
func (s *PendingAssignmentService) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().UTC()
	expired, err := s.store.Repos().Pending.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, pending := range expired {
		memberID := pending.MemberID
		_, err := s.sink.LogEvent(ctx, events.LogEventInput{
			BranchID: pending.BranchID,
			Type:     domain.EventPendingAssignmentExpired,
			MemberID: &memberID,
			Metadata: map[string]any{
				"pending_id": pending.ID,
				"purpose":    string(pending.Purpose),
				"expires_at": pending.ExpiresAt.Format(time.RFC3339),
				"source":     "sweeper",
			},
		})
		if err != nil {
			s.metrics.IncrementEventLogFailures()
			s.logger.Error("audit event not recorded", zap.String("pending_id", pending.ID), zap.Error(err))
		}
	}
	s.metrics.AddPendingExpired("sweeper", len(expired))
	return len(expired), nil
}
