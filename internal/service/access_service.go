package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/decision"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/events"
	"github.com/spec-kit/access-service/internal/observability"
	"github.com/spec-kit/access-service/internal/repository"
)

// CardAssigner is the part of CardAssignmentService the decision effects need.
type CardAssigner interface {
	AssignCard(ctx context.Context, in AssignCardInput) (*AssignCardResult, error)
}

// CheckResult is everything a terminal is told about a tap.
type CheckResult struct {
	Result     decision.Outcome
	MemberName *string
	ExpiresAt  *time.Time
}

// PingResult identifies a terminal to itself.
type PingResult struct {
	ID         string
	Name       string
	BranchID   string
	BranchName string
}

// AccessService loads the state a tap needs, runs decision.Decide and applies its effects.
type AccessService struct {
	store    repository.Store
	assigner CardAssigner
	sink     events.Sink
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// AccessDependencies bundles collaborators for the access service.
type AccessDependencies struct {
	Store    repository.Store
	Assigner CardAssigner
	Sink     events.Sink
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewAccessService builds the service.
func NewAccessService(deps AccessDependencies) *AccessService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{
		store:    deps.Store,
		assigner: deps.Assigner,
		sink:     deps.Sink,
		logger:   logger,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
}

// Check evaluates one tap of cardUID on an authenticated terminal. Every evaluation appends
// exactly one audit event; a failed audit write is logged and does not change the result.
func (s *AccessService) Check(ctx context.Context, terminal *domain.Terminal, cardUID string) (*CheckResult, error) {
	now := s.now().UTC()
	repos := s.store.Repos()

	snap, err := s.snapshot(ctx, repos, terminal.BranchID, cardUID, now)
	if err != nil {
		return nil, err
	}
	verdict := decision.Decide(snap, now)
	metadata := map[string]any{}

	switch verdict.Action {
	case decision.ActionExpirePending:
		n, err := repos.Pending.Delete(ctx, terminal.BranchID, verdict.Pending.ID)
		if err != nil {
			return nil, fmt.Errorf("delete expired pending assignment: %w", err)
		}
		if n == 0 {
			// The sweeper or another tap already expired it and logged the expiry.
			verdict = decision.NoPending()
			break
		}
		s.metrics.AddPendingExpired("tap", 1)
		metadata["pending_id"] = verdict.Pending.ID
		metadata["purpose"] = string(verdict.Pending.Purpose)
		metadata["expires_at"] = verdict.Pending.ExpiresAt.Format(time.RFC3339)
		metadata["source"] = "tap"
	case decision.ActionAssign:
		verdict, err = s.assign(ctx, terminal, cardUID, verdict, metadata)
		if err != nil {
			return nil, err
		}
	}
	if verdict.Reason != "" {
		metadata["reason"] = verdict.Reason
	}

	result := &CheckResult{Result: verdict.Outcome}
	switch verdict.Outcome {
	case decision.OutcomeAllow:
		result.ExpiresAt = verdict.ExpiresAt
		metadata["ends_at"] = verdict.ExpiresAt.Format(time.RFC3339)
		result.MemberName = s.memberName(ctx, repos, *verdict.MemberID)
	case decision.OutcomeAssigned:
		result.MemberName = s.memberName(ctx, repos, *verdict.MemberID)
		sub, err := repos.Subscriptions.LatestActiveForMember(ctx, *verdict.MemberID)
		switch {
		case err == nil:
			ends := sub.EndsAt
			result.ExpiresAt = &ends
		case !errors.Is(err, repository.ErrNotFound):
			s.logger.Warn("load active subscription failed", zap.String("member_id", *verdict.MemberID), zap.Error(err))
		}
	}

	s.record(ctx, terminal, cardUID, verdict, metadata)
	s.metrics.RecordDecision(string(verdict.Outcome))
	return result, nil
}

func (s *AccessService) snapshot(ctx context.Context, repos repository.Repositories, branchID, cardUID string, now time.Time) (decision.Snapshot, error) {
	snap := decision.Snapshot{BranchID: branchID}

	card, err := repos.Cards.GetByUID(ctx, cardUID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return snap, fmt.Errorf("load operational card: %w", err)
	}
	snap.Card = card

	switch decision.Classify(card, branchID) {
	case decision.RouteMember:
		sub, err := repos.Subscriptions.LatestForMember(ctx, *card.MemberID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return snap, fmt.Errorf("load subscription: %w", err)
		}
		snap.Subscription = sub
	case decision.RouteUnrecognized:
		pending, err := repos.Pending.GetByBranch(ctx, branchID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return snap, fmt.Errorf("load pending assignment: %w", err)
		}
		snap.Pending = pending
		if decision.NeedsInventory(pending, now) {
			available, err := repos.Inventory.IsAvailable(ctx, branchID, cardUID)
			if err != nil {
				return snap, fmt.Errorf("check inventory: %w", err)
			}
			snap.InventoryAvailable = available
		}
	}
	return snap, nil
}

// assign retries once when a concurrent assignment won the race.
func (s *AccessService) assign(ctx context.Context, terminal *domain.Terminal, cardUID string, verdict decision.Verdict, metadata map[string]any) (decision.Verdict, error) {
	in := AssignCardInput{
		BranchID:  terminal.BranchID,
		MemberID:  verdict.Pending.MemberID,
		CardUID:   cardUID,
		Purpose:   verdict.Pending.Purpose,
		ActorID:   verdict.Pending.CreatedBy,
		PendingID: verdict.Pending.ID,
	}
	metadata["pending_id"] = verdict.Pending.ID
	metadata["purpose"] = string(verdict.Pending.Purpose)

	var (
		res *AssignCardResult
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		res, err = s.assigner.AssignCard(ctx, in)
		if !errors.Is(err, ErrAssignmentConflict) {
			break
		}
	}
	switch {
	case err == nil:
		if res.Deactivated > 0 {
			metadata["deactivated_cards"] = res.Deactivated
		}
		return verdict, nil
	case errors.Is(err, ErrCardNotAvailable):
		return decision.AssignmentFailed(verdict, decision.ReasonAssignmentNotAvail), nil
	case errors.Is(err, ErrAssignmentConflict):
		return decision.AssignmentFailed(verdict, decision.ReasonAssignmentConflict), nil
	case errors.Is(err, ErrPendingConsumed):
		return decision.AssignmentFailed(verdict, decision.ReasonNoPending), nil
	default:
		return verdict, fmt.Errorf("assign card: %w", err)
	}
}

func (s *AccessService) memberName(ctx context.Context, repos repository.Repositories, memberID string) *string {
	member, err := repos.Members.GetByID(ctx, memberID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("load member failed", zap.String("member_id", memberID), zap.Error(err))
		}
		return nil
	}
	return &member.Name
}

func (s *AccessService) record(ctx context.Context, terminal *domain.Terminal, cardUID string, verdict decision.Verdict, metadata map[string]any) {
	terminalID := terminal.ID
	uid := cardUID
	in := events.LogEventInput{
		BranchID:   terminal.BranchID,
		TerminalID: &terminalID,
		Type:       verdict.Event,
		CardUID:    &uid,
		MemberID:   verdict.MemberID,
		Metadata:   metadata,
	}
	if verdict.Event == domain.EventCardAssigned && verdict.Pending != nil {
		in.ActorID = verdict.Pending.CreatedBy
	}
	if _, err := s.sink.LogEvent(ctx, in); err != nil {
		s.metrics.IncrementEventLogFailures()
		s.logger.Error("audit event not recorded",
			zap.String("event_type", string(verdict.Event)),
			zap.String("terminal_id", terminal.ID),
			zap.Error(err))
	}
}

// Ping returns the terminal identity and its branch name.
func (s *AccessService) Ping(ctx context.Context, terminal *domain.Terminal) (*PingResult, error) {
	result := &PingResult{ID: terminal.ID, Name: terminal.Name, BranchID: terminal.BranchID}
	branch, err := s.store.Repos().Branches.GetByID(ctx, terminal.BranchID)
	switch {
	case err == nil:
		result.BranchName = branch.Name
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("load branch: %w", err)
	}
	return result, nil
}
