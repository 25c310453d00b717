package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// AccountFinder loads accounts by id.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// RoleGate authorizes requests by the caller's stored role. It must be mounted
// after AuthMiddleware.Handle.
type RoleGate struct {
	accounts AccountFinder
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewRoleGate constructs the gate. timeout bounds each account lookup.
func NewRoleGate(accounts AccountFinder, timeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *RoleGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RoleGate{accounts: accounts, timeout: timeout, logger: logger, metrics: metrics}
}

// Require admits callers whose stored role is one of allowed. The role is read
// from the account store on every request and never from the token.
func (g *RoleGate) Require(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.UserID == "" {
			g.metrics.RecordGateRejection("authz", "no_principal")
			return apperrors.NewUnauthorized("authentication required")
		}

		ctx, span := observability.StartSpan(c.UserContext(), "auth.role_lookup", "user.id", principal.UserID)
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		user, err := g.accounts.FindByID(ctx, principal.UserID)
		cancel()
		observability.EndSpan(span, err)

		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				g.metrics.RecordGateRejection("authz", "unknown_account")
				g.logger.Debug("authorization rejected: account not found", zap.String("user_id", principal.UserID))
				return apperrors.NewUnauthorized("authentication required")
			}
			g.metrics.RecordGateRejection("authz", "store_unavailable")
			g.logger.Error("role lookup failed", zap.String("user_id", principal.UserID), zap.Error(err))
			return apperrors.NewStoreUnavailable(err)
		}

		if _, permitted := allowedSet[user.Role]; !permitted {
			g.metrics.RecordGateRejection("authz", "forbidden")
			g.logger.Debug("authorization rejected: role not allowed",
				zap.String("user_id", user.ID),
				zap.String("role", string(user.Role)),
				zap.String("path", c.Path()))
			return apperrors.NewForbidden("insufficient role")
		}

		principal.Role = user.Role
		principal.User = user
		return c.Next()
	}
}

// RequireSelfOrAdmin admits admins and the account named by the :id route
// parameter. It must follow a RoleGate.Require so the role is populated.
func RequireSelfOrAdmin(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Role == "" {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.Role == domain.RoleAdmin || principal.UserID == c.Params(param) {
			return c.Next()
		}
		return apperrors.NewForbidden("access to another account denied")
	}
}
