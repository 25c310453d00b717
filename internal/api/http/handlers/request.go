package handlers

import (
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/service"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

var uploadSlots = []domain.AttachmentKind{domain.AttachmentProfileImage, domain.AttachmentDocument}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

// readUploads collects the profileImage and document parts of a multipart body.
func readUploads(c *fiber.Ctx, maxBytes int64) ([]service.AttachmentUpload, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid multipart form", nil)
	}

	var uploads []service.AttachmentUpload
	for _, kind := range uploadSlots {
		files := form.File[string(kind)]
		if len(files) == 0 {
			continue
		}
		if len(files) > 1 {
			return nil, apperrors.NewValidationError("one file per attachment", map[string]any{"field": string(kind)})
		}
		header := files[0]
		if maxBytes > 0 && header.Size > maxBytes {
			return nil, apperrors.NewValidationError("attachment too large", map[string]any{
				"field":     string(kind),
				"max_bytes": maxBytes,
			})
		}

		file, err := header.Open()
		if err != nil {
			return nil, apperrors.NewValidationError("unreadable attachment", map[string]any{"field": string(kind)})
		}
		var reader io.Reader = file
		if maxBytes > 0 {
			reader = io.LimitReader(file, maxBytes+1)
		}
		data, err := io.ReadAll(reader)
		_ = file.Close()
		if err != nil {
			return nil, apperrors.NewValidationError("unreadable attachment", map[string]any{"field": string(kind)})
		}

		uploads = append(uploads, service.AttachmentUpload{
			Kind:        kind,
			ContentType: header.Header.Get(fiber.HeaderContentType),
			Data:        data,
		})
	}
	return uploads, nil
}

// actorFromContext describes the caller for audit events.
func actorFromContext(c *fiber.Ctx) events.Actor {
	actor := events.Actor{IP: c.IP()}
	if principal, ok := auth.PrincipalFromContext(c); ok {
		actor.UserID = principal.UserID
		actor.Role = principal.Role
	}
	return actor
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, apperrors.NewValidationError("invalid query parameter", map[string]any{"field": key})
	}
	return value, nil
}
