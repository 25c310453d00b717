package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/auth/authtest"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordedEvents) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	cfg         config.Config
	users       *repository.MemoryUserRepository
	attachments *repository.MemoryAttachmentRepository
	hasher      *auth.Hasher
	tokens      *auth.TokenManager
	recorded    *recordedEvents
	dispatcher  events.Dispatcher
	auth        *AuthService
	accounts    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Config{
		App:   config.AppConfig{UploadMaxBytes: 64},
		Store: config.StoreConfig{TimeoutMillis: 1000},
	}
	tokens, err := auth.NewTokenManager("service-test-secret", "account-service", time.Hour)
	require.NoError(t, err)

	f := &fixture{
		cfg:         cfg,
		users:       repository.NewMemoryUserRepository(),
		attachments: repository.NewMemoryAttachmentRepository(),
		hasher:      auth.NewHasher(bcrypt.MinCost, 2),
		tokens:      tokens,
		recorded:    &recordedEvents{},
	}

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventAccountRegistered,
		events.EventLoginSucceeded,
		events.EventLoginFailed,
		events.EventAccountUpdated,
		events.EventAccountsDeleted,
	} {
		dispatcher.Subscribe(et, f.recorded.handler)
	}
	f.dispatcher = dispatcher

	f.auth = NewAuthService(cfg, AuthDependencies{
		UserRepo:       f.users,
		AttachmentRepo: f.attachments,
		Hasher:         f.hasher,
		Tokens:         tokens,
		Dispatcher:     dispatcher,
	})
	f.accounts = NewUserService(cfg, UserDependencies{
		UserRepo:       f.users,
		AttachmentRepo: f.attachments,
		Hasher:         f.hasher,
		Dispatcher:     dispatcher,
	})
	return f
}

// withLimiter rebuilds the auth service around a Redis-backed limiter and
// returns the counters behind it.
func (f *fixture) withLimiter(maxAttempts int) *authtest.Counters {
	counters := authtest.NewCounters()
	f.auth = NewAuthService(f.cfg, AuthDependencies{
		UserRepo:       f.users,
		AttachmentRepo: f.attachments,
		Hasher:         f.hasher,
		Tokens:         f.tokens,
		Limiter:        auth.NewLoginLimiter(counters, maxAttempts, time.Minute, nil),
		Dispatcher:     f.dispatcher,
	})
	return counters
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.True(t, errors.As(err, &de), "expected DomainError, got %T: %v", err, err)
	require.Equal(t, code, de.Code)
}
