package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// DashboardHandler serves the role-gated dashboards.
type DashboardHandler struct {
	users *service.UserService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(userService *service.UserService) *DashboardHandler {
	return &DashboardHandler{users: userService}
}

// User handles GET /user/dashboard.
func (h *DashboardHandler) User(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	return c.JSON(fiber.Map{
		"message": "Welcome to the user dashboard",
		"data":    fiber.Map{"user": dto.NewUserResponse(principal.User)},
	})
}

// Admin handles GET /admin/dashboard.
func (h *DashboardHandler) Admin(c *fiber.Ctx) error {
	stats, err := h.users.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Welcome to the admin dashboard",
		"data": dto.AdminDashboardResponse{
			TotalAccounts: stats.Total,
			ByRole:        stats.ByRole,
		},
	})
}
