package service

import (
	"context"
	"errors"
	"strings"
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

// ErrInvalidCredentials is the only login failure a client ever sees.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService coordinates registration and login flows.
type AuthService struct {
	users          repository.UserRepository
	attachments    repository.AttachmentRepository
	hasher         *auth.Hasher
	tokens         *auth.TokenManager
	limiter        *auth.LoginLimiter
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	metrics        *observability.Metrics
	storeTimeout   time.Duration
	uploadMaxBytes int64
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo       repository.UserRepository
	AttachmentRepo repository.AttachmentRepository
	Hasher         *auth.Hasher
	Tokens         *auth.TokenManager
	Limiter        *auth.LoginLimiter
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// RegisterInput is a new account as submitted by a client.
type RegisterInput struct {
	Name       string
	Password   string
	Mobile     string
	Email      string
	DOB        *time.Time
	Gender     string
	City       string
	AgreeTerms bool
	Uploads    []AttachmentUpload
}

// LoginInput carries the credential pair and the caller's address.
type LoginInput struct {
	Name     string
	Password string
	IP       string
}

// LoginResult is a freshly issued session.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:          deps.UserRepo,
		attachments:    deps.AttachmentRepo,
		hasher:         deps.Hasher,
		tokens:         deps.Tokens,
		limiter:        deps.Limiter,
		dispatcher:     deps.Dispatcher,
		logger:         logger,
		metrics:        deps.Metrics,
		storeTimeout:   cfg.Store.Timeout(),
		uploadMaxBytes: cfg.App.UploadMaxBytes,
	}
}

// Register creates a user account. The secret is hashed before the store sees
// it and the role is always RoleUser.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, actor events.Actor) (user *domain.User, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.register")
	defer func() { observability.EndSpan(span, err) }()

	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}
	if err := validateUploads(input.Uploads, s.uploadMaxBytes); err != nil {
		return nil, err
	}

	if allowed, retryAfter := s.limiter.ReserveRegistration(ctx, actor.IP); !allowed {
		return nil, apperrors.NewTooManyRequests("too many registration attempts", retryAfter)
	}
	defer func() {
		if !errors.Is(err, repository.ErrNameTaken) {
			s.limiter.ReleaseRegistration(ctx, actor.IP)
		}
	}()

	hash, err := s.hasher.Hash(ctx, input.Password)
	if err != nil {
		return nil, passwordError(err)
	}

	refs, err := putUploads(ctx, s.attachments, s.storeTimeout, input.Uploads)
	if err != nil {
		return nil, storeError(err)
	}

	user = &domain.User{
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Mobile:       input.Mobile,
		Email:        input.Email,
		DOB:          input.DOB,
		Gender:       input.Gender,
		City:         input.City,
		AgreeTerms:   input.AgreeTerms,
	}
	for kind, ref := range refs {
		user.SetAttachment(kind, ref)
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	err = s.users.Create(callCtx, user)
	cancel()
	if err != nil {
		if cleanupErr := removeAttachments(ctx, s.attachments, s.storeTimeout, refs); cleanupErr != nil {
			s.logger.Warn("orphaned attachments after failed registration", zap.Error(cleanupErr))
		}
		return nil, storeError(err)
	}

	s.logger.Info("account registered", zap.String("user_id", user.ID), zap.String("name", user.Name))
	publish(ctx, s.dispatcher, events.Event{
		Type:      events.EventAccountRegistered,
		AccountID: user.ID,
		Actor:     actor,
		Payload: events.AccountRegisteredPayload{
			Name:        user.Name,
			Role:        user.Role,
			Attachments: len(refs),
		},
	})
	return user, nil
}

// Login verifies a name/secret pair and issues a session token. An unknown name
// and a wrong secret fail identically and take comparable time.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (result *LoginResult, err error) {
	ctx, span := observability.StartSpan(ctx, "auth.login")
	defer func() { observability.EndSpan(span, err) }()

	input.Name = strings.TrimSpace(input.Name)
	if allowed, retryAfter := s.limiter.Reserve(ctx, input.IP, input.Name); !allowed {
		s.metrics.RecordLogin("throttled")
		return nil, apperrors.NewTooManyRequests("too many login attempts", retryAfter)
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	user, err := s.users.FindByName(callCtx, input.Name)
	cancel()
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Burn(ctx, input.Password)
		return nil, s.loginFailed(ctx, input, "", "unknown_account")
	}
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, storeError(err)
	}

	ok, err := s.hasher.Verify(ctx, input.Password, user.PasswordHash)
	if err != nil {
		s.metrics.RecordLogin("error")
		if errors.Is(err, auth.ErrCorruptCredential) {
			s.logger.Error("corrupt credential on record", zap.String("user_id", user.ID), zap.Error(err))
			return nil, apperrors.NewInternalError(err)
		}
		return nil, err
	}
	if !ok {
		return nil, s.loginFailed(ctx, input, user.ID, "wrong_password")
	}

	token, expiresAt, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, apperrors.NewInternalError(err)
	}

	s.limiter.RecordSuccess(ctx, input.IP, input.Name)
	s.metrics.RecordLogin("success")
	publish(ctx, s.dispatcher, events.Event{
		Type:      events.EventLoginSucceeded,
		AccountID: user.ID,
		Actor:     events.Actor{UserID: user.ID, Role: user.Role, IP: input.IP},
	})
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, input LoginInput, accountID, reason string) error {
	s.metrics.RecordLogin("invalid")
	s.logger.Debug("login rejected", zap.String("reason", reason), zap.String("ip", input.IP))
	publish(ctx, s.dispatcher, events.Event{
		Type:      events.EventLoginFailed,
		AccountID: accountID,
		Actor:     events.Actor{IP: input.IP},
		Payload:   events.LoginFailedPayload{Name: input.Name, Reason: reason},
	})
	return apperrors.NewInvalidCredentials(ErrInvalidCredentials)
}

// EnsureAdmin creates the named admin account unless an account with that
// name already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, name, password string) (*domain.User, bool, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, false, err
	}

	callCtx, cancel := storeCall(ctx, s.storeTimeout)
	existing, err := s.users.FindByName(callCtx, name)
	cancel()
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			s.logger.Warn("bootstrap admin name is taken by a non-admin account", zap.String("name", name))
		}
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, storeError(err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, false, passwordError(err)
	}
	admin := &domain.User{Name: name, PasswordHash: hash, Role: domain.RoleAdmin, AgreeTerms: true}

	callCtx, cancel = storeCall(ctx, s.storeTimeout)
	err = s.users.Create(callCtx, admin)
	cancel()
	if err != nil {
		return nil, false, storeError(err)
	}
	s.logger.Info("bootstrap admin created", zap.String("user_id", admin.ID), zap.String("name", admin.Name))
	return admin, true, nil
}

func passwordError(err error) error {
	switch {
	case errors.Is(err, auth.ErrPasswordRequired):
		return apperrors.NewValidationError("password is required", map[string]any{"field": "password"})
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apperrors.NewValidationError("password is too long", map[string]any{
			"field":     "password",
			"max_bytes": auth.MaxPasswordBytes,
		})
	default:
		return err
	}
}
