package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

const maxNameLength = 64

// AttachmentUpload is a blob submitted with a registration or update.
type AttachmentUpload struct {
	Kind        domain.AttachmentKind
	ContentType string
	Data        []byte
}

// storeCall bounds a single store round trip.
func storeCall(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeError translates repository failures that are not handled by the caller.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNameTaken):
		return apperrors.NewConflict("name already registered", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperrors.NewStoreUnavailable(err)
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if len(name) > maxNameLength {
		return "", apperrors.NewValidationError("name is too long", map[string]any{"field": "name", "max": maxNameLength})
	}
	return name, nil
}

func validateUploads(uploads []AttachmentUpload, maxBytes int64) error {
	seen := make(map[domain.AttachmentKind]bool, len(uploads))
	for _, upload := range uploads {
		switch upload.Kind {
		case domain.AttachmentProfileImage, domain.AttachmentDocument:
		default:
			return apperrors.NewValidationError("unknown attachment", map[string]any{"field": string(upload.Kind)})
		}
		if seen[upload.Kind] {
			return apperrors.NewValidationError("attachment given twice", map[string]any{"field": string(upload.Kind)})
		}
		seen[upload.Kind] = true
		if len(upload.Data) == 0 {
			return apperrors.NewValidationError("attachment is empty", map[string]any{"field": string(upload.Kind)})
		}
		if maxBytes > 0 && int64(len(upload.Data)) > maxBytes {
			return apperrors.NewValidationError("attachment too large", map[string]any{
				"field":     string(upload.Kind),
				"max_bytes": maxBytes,
			})
		}
	}
	return nil
}

func storageKey(kind domain.AttachmentKind) string {
	return fmt.Sprintf("accounts/%s/%s", uuid.NewString(), kind)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

// putUploads stores each upload under a fresh key and returns the references to
// record on the account. On failure the blobs written so far are removed.
func putUploads(ctx context.Context, repo repository.AttachmentRepository, timeout time.Duration, uploads []AttachmentUpload) (map[domain.AttachmentKind]*domain.AttachmentRef, error) {
	refs := make(map[domain.AttachmentKind]*domain.AttachmentRef, len(uploads))
	for _, upload := range uploads {
		contentType := upload.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachment := &domain.Attachment{
			Key:         storageKey(upload.Kind),
			ContentType: contentType,
			Data:        upload.Data,
		}
		callCtx, cancel := storeCall(ctx, timeout)
		err := repo.Put(callCtx, attachment)
		cancel()
		if err != nil {
			removeAttachments(ctx, repo, timeout, refs)
			return nil, fmt.Errorf("store %s: %w", upload.Kind, err)
		}
		refs[upload.Kind] = &domain.AttachmentRef{
			Key:         attachment.Key,
			ContentType: contentType,
			Size:        int64(len(upload.Data)),
		}
	}
	return refs, nil
}

func removeAttachments(ctx context.Context, repo repository.AttachmentRepository, timeout time.Duration, refs map[domain.AttachmentKind]*domain.AttachmentRef) error {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref != nil {
			keys = append(keys, ref.Key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	callCtx, cancel := storeCall(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return repo.Delete(callCtx, keys...)
}
