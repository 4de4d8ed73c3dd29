package handlers

import (
	"strings"
	"unicode"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/access-service/internal/api/dto"
	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/service"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

const (
	cardUIDKey = "access_card_uid"

	// MaxCardUIDLength bounds the uid a reader may send.
	MaxCardUIDLength = 64

	expiresAtLayout = "2006-01-02"
)

// AccessHandler serves the terminal facing endpoints.
type AccessHandler struct {
	service *service.AccessService
}

// NewAccessHandler constructs handler.
func NewAccessHandler(accessService *service.AccessService) *AccessHandler {
	return &AccessHandler{service: accessService}
}

// Check handles POST /access/check.
func (h *AccessHandler) Check(c *fiber.Ctx) error {
	terminal, ok := auth.TerminalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("terminal authentication required")
	}
	cardUID, ok := CardUIDFromContext(c)
	if !ok {
		return apperrors.NewValidationError("cardUid is required", nil)
	}

	res, err := h.service.Check(c.UserContext(), terminal, cardUID)
	if err != nil {
		return apperrors.MapError(err)
	}

	resp := dto.AccessCheckResponse{Result: string(res.Result), MemberName: res.MemberName}
	if res.ExpiresAt != nil {
		formatted := res.ExpiresAt.UTC().Format(expiresAtLayout)
		resp.ExpiresAt = &formatted
	}
	return c.JSON(resp)
}

// Ping handles POST /access/terminals/ping.
func (h *AccessHandler) Ping(c *fiber.Ctx) error {
	terminal, ok := auth.TerminalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("terminal authentication required")
	}
	res, err := h.service.Ping(c.UserContext(), terminal)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(dto.TerminalPingResponse{
		ID:         res.ID,
		Name:       res.Name,
		BranchID:   res.BranchID,
		BranchName: res.BranchName,
	})
}

// ValidateCardUID parses the check body and rejects a missing or malformed uid before any
// authentication work happens.
func ValidateCardUID(c *fiber.Ctx) error {
	var req dto.AccessCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	uid := strings.TrimSpace(req.CardUID)
	if uid == "" {
		return apperrors.NewValidationError("cardUid is required", map[string]any{"field": "cardUid"})
	}
	if len(uid) > MaxCardUIDLength || strings.IndexFunc(uid, unicode.IsControl) >= 0 {
		return apperrors.NewValidationError("cardUid is malformed", map[string]any{"field": "cardUid"})
	}
	c.Locals(cardUIDKey, uid)
	return c.Next()
}

// CardUIDFromContext returns the uid accepted by ValidateCardUID.
func CardUIDFromContext(c *fiber.Ctx) (string, bool) {
	uid, ok := c.Locals(cardUIDKey).(string)
	return uid, ok && uid != ""
}
