package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/api/dto"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const maxListLimit = 200

// UsersHandler exposes registration, login and account management endpoints.
type UsersHandler struct {
	auth           *service.AuthService
	users          *service.UserService
	uploadMaxBytes int64
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, userService *service.UserService, uploadMaxBytes int64) *UsersHandler {
	return &UsersHandler{auth: authService, users: userService, uploadMaxBytes: uploadMaxBytes}
}

// Register handles POST /user.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dob, ok := dto.ParseDate(req.DOB)
	if !ok {
		return apperrors.NewValidationError("invalid date of birth", map[string]any{"field": "dob"})
	}
	uploads, err := readUploads(c, h.uploadMaxBytes)
	if err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:       req.Name,
		Password:   req.Password,
		Mobile:     req.Mobile,
		Email:      req.Email,
		DOB:        dob,
		Gender:     req.Gender,
		City:       req.City,
		AgreeTerms: req.AgreeTerms,
		Uploads:    uploads,
	}, actorFromContext(c))
	if err != nil {
		setRetryAfter(c, err)
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User data saved successfully",
		"data":    dto.NewUserResponse(user),
	})
}

// Login handles POST /login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	name := req.Identity()
	if strings.TrimSpace(name) == "" || req.Password == "" {
		return apperrors.NewValidationError("name and password required", nil)
	}

	result, err := h.auth.Login(c.UserContext(), service.LoginInput{
		Name:     name,
		Password: req.Password,
		IP:       c.IP(),
	})
	if err != nil {
		setRetryAfter(c, err)
		return err
	}
	return c.JSON(dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt})
}

// List handles GET /user.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	filter := repository.UserFilter{Limit: limit, Offset: offset}
	if raw := c.Query("role"); raw != "" {
		role := domain.Role(raw)
		if !role.Valid() {
			return apperrors.NewValidationError("unknown role", map[string]any{"field": "role"})
		}
		filter.Role = &role
	}

	users, err := h.users.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		items = append(items, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get handles GET /user/:id.
func (h *UsersHandler) Get(c *fiber.Ctx) error {
	user, err := h.users.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Update handles PUT /user/:id.
func (h *UsersHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input := service.UpdateInput{
		Name:       req.Name,
		Password:   req.Password,
		Mobile:     req.Mobile,
		Email:      req.Email,
		Gender:     req.Gender,
		City:       req.City,
		AgreeTerms: req.AgreeTerms,
	}
	if req.Role != nil {
		role := domain.Role(*req.Role)
		input.Role = &role
	}
	if req.DOB != nil {
		dob, ok := dto.ParseDate(*req.DOB)
		if !ok || dob == nil {
			return apperrors.NewValidationError("invalid date of birth", map[string]any{"field": "dob"})
		}
		input.DOB = dob
	}
	uploads, err := readUploads(c, h.uploadMaxBytes)
	if err != nil {
		return err
	}
	input.Uploads = uploads

	user, err := h.users.Update(c.UserContext(), actorFromContext(c), c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "User data updated successfully",
		"data":    dto.NewUserResponse(user),
	})
}

// Delete handles DELETE /user/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	deleted, err := h.users.Delete(c.UserContext(), actorFromContext(c), []string{id})
	if err != nil {
		return err
	}
	if deleted == 0 {
		return apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": deleted}})
}

// BulkDelete handles POST /delete.
func (h *UsersHandler) BulkDelete(c *fiber.Ctx) error {
	var req dto.DeleteUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	deleted, err := h.users.Delete(c.UserContext(), actorFromContext(c), req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"message": "Selected rows deleted successfully",
		"data":    fiber.Map{"deleted": deleted},
	})
}

// ProfileImage handles GET /user/:id/profile-image.
func (h *UsersHandler) ProfileImage(c *fiber.Ctx) error {
	return h.sendAttachment(c, domain.AttachmentProfileImage)
}

// Document handles GET /user/:id/document.
func (h *UsersHandler) Document(c *fiber.Ctx) error {
	return h.sendAttachment(c, domain.AttachmentDocument)
}

func (h *UsersHandler) sendAttachment(c *fiber.Ctx, kind domain.AttachmentKind) error {
	attachment, err := h.users.Attachment(c.UserContext(), c.Params("id"), kind)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, attachment.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, no-store")
	return c.Send(attachment.Data)
}

func setRetryAfter(c *fiber.Ctx, err error) {
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != apperrors.CodeTooManyRequests {
		return
	}
	if seconds, ok := domainErr.Details["retry_after_seconds"]; ok {
		c.Set(fiber.HeaderRetryAfter, fmt.Sprint(seconds))
	}
}
