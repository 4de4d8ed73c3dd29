package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/access-service/internal/api/dto"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/service"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

// PendingAssignmentsHandler arms and disarms card assignment per branch.
type PendingAssignmentsHandler struct {
	service *service.PendingAssignmentService
}

// NewPendingAssignmentsHandler constructs handler.
func NewPendingAssignmentsHandler(pendingService *service.PendingAssignmentService) *PendingAssignmentsHandler {
	return &PendingAssignmentsHandler{service: pendingService}
}

// Put handles PUT /admin/branches/:branchId/pending-assignment.
func (h *PendingAssignmentsHandler) Put(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PendingAssignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ExpiresInSeconds < 0 {
		return apperrors.NewValidationError("expires_in_seconds must not be negative", nil)
	}
	pending, err := h.service.Upsert(c.UserContext(), actor, c.Params("branchId"), service.PendingUpsertInput{
		MemberID:  req.MemberID,
		Purpose:   req.Purpose,
		ExpiresIn: time.Duration(req.ExpiresInSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pendingResponse(pending)})
}

// Get handles GET /admin/branches/:branchId/pending-assignment.
func (h *PendingAssignmentsHandler) Get(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	pending, err := h.service.Get(c.UserContext(), actor, c.Params("branchId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pendingResponse(pending)})
}

// Delete handles DELETE /admin/branches/:branchId/pending-assignment.
func (h *PendingAssignmentsHandler) Delete(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.service.Cancel(c.UserContext(), actor, c.Params("branchId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func pendingResponse(p *domain.PendingMemberAssignment) dto.PendingAssignmentResponse {
	return dto.PendingAssignmentResponse{
		ID:        p.ID,
		BranchID:  p.BranchID,
		MemberID:  p.MemberID,
		Purpose:   p.Purpose,
		ExpiresAt: p.ExpiresAt,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}
