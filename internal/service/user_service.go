package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

// UserService manages stored accounts on behalf of authorized callers.
type UserService struct {
	users          repository.UserRepository
	attachments    repository.AttachmentRepository
	hasher         *auth.Hasher
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	storeTimeout   time.Duration
	uploadMaxBytes int64
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo       repository.UserRepository
	AttachmentRepo repository.AttachmentRepository
	Hasher         *auth.Hasher
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Name       *string
	Password   *string
	Role       *domain.Role
	Mobile     *string
	Email      *string
	DOB        *time.Time
	Gender     *string
	City       *string
	AgreeTerms *bool
	Uploads    []AttachmentUpload
}

// AccountStats summarizes the account store for the admin dashboard.
type AccountStats struct {
	Total  int64
	ByRole map[domain.Role]int64
}

// NewUserService constructs the service.
func NewUserService(cfg config.Config, deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:          deps.UserRepo,
		attachments:    deps.AttachmentRepo,
		hasher:         deps.Hasher,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		storeTimeout:   cfg.Store.Timeout(),
		uploadMaxBytes: cfg.App.UploadMaxBytes,
	}
}

// List returns accounts ordered by creation time.
func (s *UserService) List(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	defer cancel()
	users, err := s.users.List(callCtx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return users, nil
}

// Get loads a single account.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	defer cancel()
	user, err := s.users.FindByID(callCtx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
	}
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}

// Update applies input to the account id. Only admins may change a role; a new
// secret is hashed before it reaches the store.
func (s *UserService) Update(ctx context.Context, actor events.Actor, id string, input UpdateInput) (user *domain.User, err error) {
	ctx, span := observability.StartSpan(ctx, "users.update", "user.id", id)
	defer func() { observability.EndSpan(span, err) }()

	if input.Role != nil && !input.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"field": "role"})
	}
	if err := validateUploads(input.Uploads, s.uploadMaxBytes); err != nil {
		return nil, err
	}

	user, err = s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var fields []string
	roleChanged := false
	if input.Role != nil && *input.Role != user.Role {
		if actor.Role != domain.RoleAdmin {
			return nil, apperrors.NewForbidden("only an admin may change a role")
		}
		user.Role = *input.Role
		roleChanged = true
		fields = append(fields, "role")
	}
	if input.Name != nil {
		name, err := validateName(*input.Name)
		if err != nil {
			return nil, err
		}
		user.Name = name
		fields = append(fields, "name")
	}
	if input.Password != nil {
		hash, err := s.hasher.Hash(ctx, *input.Password)
		if err != nil {
			return nil, passwordError(err)
		}
		user.PasswordHash = hash
		fields = append(fields, "password")
	}
	if input.Mobile != nil {
		user.Mobile = *input.Mobile
		fields = append(fields, "mobile")
	}
	if input.Email != nil {
		user.Email = *input.Email
		fields = append(fields, "email")
	}
	if input.DOB != nil {
		user.DOB = input.DOB
		fields = append(fields, "dob")
	}
	if input.Gender != nil {
		user.Gender = *input.Gender
		fields = append(fields, "gender")
	}
	if input.City != nil {
		user.City = *input.City
		fields = append(fields, "city")
	}
	if input.AgreeTerms != nil {
		user.AgreeTerms = *input.AgreeTerms
		fields = append(fields, "agreeTerms")
	}

	refs, err := putUploads(ctx, s.attachments, s.storeTimeout, input.Uploads)
	if err != nil {
		return nil, storeError(err)
	}
	replaced := make(map[domain.AttachmentKind]*domain.AttachmentRef, len(refs))
	for kind, ref := range refs {
		replaced[kind] = user.Attachment(kind)
		user.SetAttachment(kind, ref)
		fields = append(fields, string(kind))
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	err = s.users.Update(callCtx, user)
	cancel()
	if err != nil {
		if cleanupErr := removeAttachments(ctx, s.attachments, s.storeTimeout, refs); cleanupErr != nil {
			s.logger.Warn("orphaned attachments after failed update", zap.Error(cleanupErr))
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return nil, storeError(err)
	}
	if err := removeAttachments(ctx, s.attachments, s.storeTimeout, replaced); err != nil {
		s.logger.Warn("failed to remove replaced attachments", zap.String("user_id", id), zap.Error(err))
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:      events.EventAccountUpdated,
		AccountID: user.ID,
		Actor:     actor,
		Payload: events.AccountUpdatedPayload{
			Fields:      fields,
			RoleChanged: roleChanged,
			NewRole:     newRole(roleChanged, user.Role),
		},
	})
	return user, nil
}

// Delete removes the given accounts and their attachments. Unknown ids are
// skipped; the number actually removed is returned.
func (s *UserService) Delete(ctx context.Context, actor events.Actor, ids []string) (deleted int64, err error) {
	ctx, span := observability.StartSpan(ctx, "users.delete")
	defer func() { observability.EndSpan(span, err) }()

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, apperrors.NewValidationError("ids are required", map[string]any{"field": "ids"})
	}

	var keys []string
	for _, id := range ids {
		callCtx, cancel := storeCall(ctx, s.storeTimeout)
		user, err := s.users.FindByID(callCtx, id)
		cancel()
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, storeError(err)
		}
		for _, ref := range user.Attachments() {
			keys = append(keys, ref.Key)
		}
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	deleted, err = s.users.DeleteMany(callCtx, ids)
	cancel()
	if err != nil {
		return 0, storeError(err)
	}

	if len(keys) > 0 {
		callCtx, cancel := storeCall(context.WithoutCancel(ctx), s.storeTimeout)
		if err := s.attachments.Delete(callCtx, keys...); err != nil {
			s.logger.Warn("failed to remove attachments of deleted accounts", zap.Error(err))
		}
		cancel()
	}

	publish(ctx, s.dispatcher, events.Event{
		Type:    events.EventAccountsDeleted,
		Actor:   actor,
		Payload: events.AccountsDeletedPayload{Requested: ids, Deleted: deleted},
	})
	return deleted, nil
}

// Attachment returns the blob stored in the given slot of account id.
func (s *UserService) Attachment(ctx context.Context, id string, kind domain.AttachmentKind) (*domain.Attachment, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ref := user.Attachment(kind)
	if ref == nil {
		return nil, apperrors.NewNotFound(string(kind), map[string]any{"user_id": id})
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	defer cancel()
	attachment, err := s.attachments.Get(callCtx, ref.Key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound(string(kind), map[string]any{"user_id": id})
	}
	if err != nil {
		return nil, storeError(err)
	}
	return attachment, nil
}

// Stats counts accounts per role.
func (s *UserService) Stats(ctx context.Context) (*AccountStats, error) {
	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	defer cancel()
	counts, err := s.users.CountByRole(callCtx)
	if err != nil {
		return nil, storeError(err)
	}
	stats := &AccountStats{ByRole: counts}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

func newRole(changed bool, role domain.Role) domain.Role {
	if !changed {
		return ""
	}
	return role
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
