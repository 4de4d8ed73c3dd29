package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/api/http/handlers"
	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/dedup"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/observability"
	"github.com/spec-kit/access-service/internal/ratelimit"
	"github.com/spec-kit/access-service/internal/service"
	apperrors "github.com/spec-kit/access-service/pkg/util"
)

// Terminal credential headers.
const (
	HeaderTerminalID     = "X-Terminal-Id"
	HeaderTerminalSecret = "X-Terminal-Secret"
)

// TerminalValidator authenticates terminal credentials.
type TerminalValidator interface {
	Validate(ctx context.Context, terminalID, encodedSecret string) (*domain.Terminal, error)
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
				response := fiber.Map{"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				}}
				if len(domainErr.Details) > 0 {
					response["error"].(fiber.Map)["details"] = domainErr.Details
				}
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed", zap.String("path", c.Path()), zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(response)
				err = nil
			}
		}()
		return c.Next()
	}
}

// toDomainError also maps fiber's own errors (unknown route, bad method) so they keep their status.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := "HTTP_ERROR"
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			code = "NOT_FOUND"
		case fiber.StatusMethodNotAllowed:
			code = "METHOD_NOT_ALLOWED"
		case fiber.StatusBadRequest:
			code = "VALIDATION_FAILED"
		case fiber.StatusRequestEntityTooLarge:
			code = "PAYLOAD_TOO_LARGE"
		}
		return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewDomainError("TIMEOUT", "request timed out", fiber.StatusServiceUnavailable, nil)
	}
	return apperrors.ToDomainError(err)
}

// RateLimitOptions configures the tap rate limiter middleware.
type RateLimitOptions struct {
	Limiter       ratelimit.Limiter
	TrustedHeader string
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// RateLimit counts requests per terminal id and client IP before any credential check.
// Requests without a terminal id pass through so terminal auth can reject them. A failing
// limiter backend lets the request through.
func RateLimit(opts RateLimitOptions) fiber.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		terminalID := c.Get(HeaderTerminalID)
		if terminalID == "" {
			return c.Next()
		}
		header := func(key string) string { return c.Get(key) }
		ip := ratelimit.ResolveClientIP(header, opts.TrustedHeader, c.Context().RemoteIP().String())
		res, err := opts.Limiter.Consume(c.UserContext(), ratelimit.Key(terminalID, ip))
		if err != nil {
			logger.Warn("rate limiter unavailable, allowing request", zap.String("terminal_id", terminalID), zap.Error(err))
			return c.Next()
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			opts.Metrics.IncrementRateLimitRejections()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(apperrors.RetryAfterSeconds(res.ResetIn)))
			return apperrors.NewRateLimited(res.ResetIn)
		}
		return c.Next()
	}
}

// TerminalAuth authenticates the terminal from its credential headers.
func TerminalAuth(validator TerminalValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		terminalID := c.Get(HeaderTerminalID)
		secret := c.Get(HeaderTerminalSecret)
		if terminalID == "" || secret == "" {
			return apperrors.NewUnauthorized("terminal credentials required")
		}
		terminal, err := validator.Validate(c.UserContext(), terminalID, secret)
		if err != nil {
			if errors.Is(err, service.ErrInvalidTerminalCredentials) {
				return apperrors.NewUnauthorized("invalid terminal credentials")
			}
			return apperrors.MapError(err)
		}
		auth.WithTerminal(c, terminal)
		return c.Next()
	}
}

// DedupOptions configures duplicate tap suppression.
type DedupOptions struct {
	Deduplicator dedup.Deduplicator
	Cooldown     time.Duration
	Metrics      *observability.Metrics
}

// Dedup drops a repeated tap of the same card on the same terminal within the cooldown.
// Suppressed taps never reach the decision engine and write no audit event.
func Dedup(opts DedupOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		terminal, ok := auth.TerminalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("terminal authentication required")
		}
		cardUID, ok := handlers.CardUIDFromContext(c)
		if !ok {
			return apperrors.NewValidationError("cardUid is required", nil)
		}
		res, err := opts.Deduplicator.IsDuplicateAndRecordTap(c.UserContext(), terminal.ID, cardUID, opts.Cooldown)
		if err != nil {
			return apperrors.MapError(err)
		}
		if res.IsDuplicate {
			opts.Metrics.IncrementDuplicateTaps()
			return apperrors.NewDuplicateTap(res.Cooldown)
		}
		return c.Next()
	}
}
