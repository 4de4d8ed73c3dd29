package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/access-service/internal/api/dto"
	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/service"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

// TerminalsHandler manages terminal provisioning for administrators.
type TerminalsHandler struct {
	service *service.TerminalAdminService
}

// NewTerminalsHandler constructs handler.
func NewTerminalsHandler(adminService *service.TerminalAdminService) *TerminalsHandler {
	return &TerminalsHandler{service: adminService}
}

// List handles GET /admin/terminals.
func (h *TerminalsHandler) List(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	filters := service.TerminalListFilters{}
	if branchID := c.Query("branch_id"); branchID != "" {
		filters.BranchID = &branchID
	}
	if active := c.Query("active"); active != "" {
		val, err := strconv.ParseBool(active)
		if err != nil {
			return apperrors.NewValidationError("active must be a boolean", nil)
		}
		filters.Active = &val
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filters.Offset = (page - 1) * pageSize
	filters.Limit = pageSize

	terminals, err := h.service.List(c.UserContext(), actor, filters)
	if err != nil {
		return err
	}
	resp := make([]dto.TerminalResponse, 0, len(terminals))
	for i := range terminals {
		resp = append(resp, terminalResponse(&terminals[i]))
	}
	return c.JSON(fiber.Map{
		"data": resp,
		"meta": fiber.Map{"page": page, "page_size": pageSize},
	})
}

// Create handles POST /admin/terminals.
func (h *TerminalsHandler) Create(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TerminalCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.BranchID == "" || req.Name == "" {
		return apperrors.NewValidationError("branch_id and name required", nil)
	}
	provisioned, err := h.service.Create(c.UserContext(), actor, service.TerminalCreateInput{
		BranchID: req.BranchID,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": provisionedResponse(provisioned)})
}

// Update handles PATCH /admin/terminals/:id.
func (h *TerminalsHandler) Update(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.TerminalUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, err := h.service.Update(c.UserContext(), actor, c.Params("id"), service.TerminalUpdateInput{
		Name:     req.Name,
		BranchID: req.BranchID,
		Active:   req.Active,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": terminalResponse(updated)})
}

// RotateSecret handles POST /admin/terminals/:id/rotate-secret.
func (h *TerminalsHandler) RotateSecret(c *fiber.Ctx) error {
	actor, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	provisioned, err := h.service.RotateSecret(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": provisionedResponse(provisioned)})
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func terminalResponse(t *domain.Terminal) dto.TerminalResponse {
	return dto.TerminalResponse{
		ID:         t.ID,
		TenantID:   t.TenantID,
		BranchID:   t.BranchID,
		Name:       t.Name,
		Active:     t.Active,
		LastSeenAt: t.LastSeenAt,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func provisionedResponse(p *service.ProvisionedTerminal) dto.ProvisionedTerminalResponse {
	return dto.ProvisionedTerminalResponse{
		Terminal: terminalResponse(p.Terminal),
		Secret:   p.Secret,
	}
}
