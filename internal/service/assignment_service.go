package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository"
)

var (
	// ErrCardNotAvailable means the inventory card is missing, already assigned or allocated elsewhere.
	ErrCardNotAvailable = errors.New("card not available for assignment")
	// ErrAssignmentConflict means a concurrent assignment of the same uid committed first.
	ErrAssignmentConflict = errors.New("card assignment conflict")
	// ErrPendingConsumed means the pending assignment was used or removed by a concurrent caller.
	ErrPendingConsumed = errors.New("pending assignment already consumed")
)

// AssignCardInput describes one assignment attempt.
type AssignCardInput struct {
	BranchID string
	MemberID string
	CardUID  string
	Purpose  domain.AssignmentPurpose
	ActorID  *string
	// PendingID, when set, names the pending assignment this call consumes. Only one
	// assignment can consume it. Without it any pending assignment of the branch is cleared.
	PendingID string
}

// AssignCardResult is returned after the transaction committed.
type AssignCardResult struct {
	CardUID    string
	MemberID   string
	AssignedAt time.Time
	// Deactivated counts the member's previous cards switched off by a REPLACE.
	Deactivated int64
}

// CardAssignmentService turns an inventory card into a member's operational card.
type CardAssignmentService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewCardAssignmentService builds the service.
func NewCardAssignmentService(store repository.Store, logger *zap.Logger) *CardAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CardAssignmentService{store: store, logger: logger, now: time.Now}
}

// AssignCard runs the whole assignment in one transaction. Of two concurrent calls for the same
// uid exactly one commits; the other gets ErrCardNotAvailable or ErrAssignmentConflict.
func (s *CardAssignmentService) AssignCard(ctx context.Context, in AssignCardInput) (*AssignCardResult, error) {
	if in.BranchID == "" || in.MemberID == "" || in.CardUID == "" {
		return nil, fmt.Errorf("assign card: branch, member and card uid are required")
	}
	if !in.Purpose.Valid() {
		return nil, fmt.Errorf("assign card: invalid purpose %q", in.Purpose)
	}

	result := &AssignCardResult{CardUID: in.CardUID, MemberID: in.MemberID}
	err := s.store.InTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		inv, err := repos.Inventory.LockByUID(ctx, in.CardUID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCardNotAvailable
			}
			return fmt.Errorf("lock inventory card: %w", err)
		}
		if inv.Status != domain.InventoryStatusAvailable || inv.BranchID != in.BranchID {
			return ErrCardNotAvailable
		}

		if err := consumePending(ctx, repos.Pending, in); err != nil {
			return err
		}

		memberID := in.MemberID
		card := &domain.OperationalCard{
			UID:      in.CardUID,
			BranchID: in.BranchID,
			MemberID: &memberID,
			CardType: domain.CardTypeMember,
			Active:   true,
		}
		if err := repos.Cards.Create(ctx, card); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAssignmentConflict
			}
			return fmt.Errorf("create operational card: %w", err)
		}

		now := s.now().UTC()
		if err := repos.Inventory.MarkAssigned(ctx, in.CardUID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAssignmentConflict
			}
			return fmt.Errorf("mark inventory assigned: %w", err)
		}

		if in.Purpose == domain.AssignmentPurposeReplace {
			n, err := repos.Cards.DeactivateMemberCards(ctx, in.MemberID, in.CardUID)
			if err != nil {
				return fmt.Errorf("deactivate previous cards: %w", err)
			}
			result.Deactivated = n
		}

		if err := repos.Members.SetActiveCard(ctx, in.MemberID, in.CardUID, now); err != nil {
			return fmt.Errorf("update member card: %w", err)
		}
		result.AssignedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("card assigned",
		zap.String("branch_id", in.BranchID),
		zap.String("member_id", in.MemberID),
		zap.String("card_uid", in.CardUID),
		zap.String("purpose", string(in.Purpose)),
		zap.Int64("deactivated", result.Deactivated))
	return result, nil
}

func consumePending(ctx context.Context, pending repository.PendingAssignmentRepository, in AssignCardInput) error {
	if in.PendingID == "" {
		if _, err := pending.DeleteByBranch(ctx, in.BranchID); err != nil {
			return fmt.Errorf("clear pending assignment: %w", err)
		}
		return nil
	}
	n, err := pending.Delete(ctx, in.BranchID, in.PendingID)
	if err != nil {
		return fmt.Errorf("consume pending assignment: %w", err)
	}
	if n == 0 {
		return ErrPendingConsumed
	}
	return nil
}
