package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller. Role and User are empty until
// a RoleGate has looked the account up.
type Principal struct {
	UserID string
	Role   domain.Role
	User   *domain.User
}

// TokenVerifier resolves a session token to an identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

// AuthMiddleware validates session tokens and attaches the caller's identity.
type AuthMiddleware struct {
	tokens  TokenVerifier
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens TokenVerifier, logger *zap.Logger, metrics *observability.Metrics) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, logger: logger, metrics: metrics}
}

// Handle enforces authentication for protected routes. Every failure produces
// the same 401; the reason only reaches logs and metrics.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, ok := extractToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return m.reject(c, "missing", nil)
	}

	identity, err := m.tokens.Verify(token)
	if err != nil {
		return m.reject(c, rejectionReason(err), err)
	}

	c.Locals(principalKey, &Principal{UserID: identity.UserID})
	return c.Next()
}

func (m *AuthMiddleware) reject(c *fiber.Ctx, reason string, err error) error {
	m.metrics.RecordGateRejection("authn", reason)
	m.logger.Debug("authentication rejected",
		zap.String("reason", reason),
		zap.String("path", c.Path()),
		zap.Error(err))
	return apperrors.NewUnauthorized("authentication required")
}

// extractToken accepts "Bearer <token>" as well as a bare token.
func extractToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 {
		if !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		token := strings.TrimSpace(parts[1])
		return token, token != ""
	}
	return header, true
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "malformed"
	}
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}
