package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/account-service/internal/domain"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/repository"
	apperrors "github.com/spec-kit/account-service/pkg/util"
)

type unavailableUsers struct {
	*repository.MemoryUserRepository
}

func (unavailableUsers) FindByName(context.Context, string) (*domain.User, error) {
	return nil, errors.New("connection reset by peer")
}

func TestAuthService_RegisterHashesAndForcesUserRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, RegisterInput{Name: "  alice ", Password: "p@ss", City: "Pune"}, events.Actor{IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.NotEqual(t, "p@ss", user.PasswordHash)

	stored, err := f.users.FindByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Pune", stored.City)
	ok, err := f.hasher.Verify(ctx, "p@ss", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []events.EventType{events.EventAccountRegistered}, f.recorded.types())
	assert.Equal(t, user.ID, f.recorded.last().AccountID)
}

func TestAuthService_RegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input RegisterInput
		code  string
	}{
		{name: "empty name", input: RegisterInput{Name: " ", Password: "p@ss"}, code: apperrors.CodeValidation},
		{name: "empty password", input: RegisterInput{Name: "alice"}, code: apperrors.CodeValidation},
		{name: "oversized upload", input: RegisterInput{Name: "alice", Password: "p@ss", Uploads: []AttachmentUpload{
			{Kind: domain.AttachmentDocument, Data: make([]byte, 65)},
		}}, code: apperrors.CodeValidation},
		{name: "unknown upload", input: RegisterInput{Name: "alice", Password: "p@ss", Uploads: []AttachmentUpload{
			{Kind: "avatar", Data: []byte("x")},
		}}, code: apperrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tt.input, events.Actor{})
			requireCode(t, err, tt.code)
		})
	}
	assert.Zero(t, f.attachments.Len())
}

func TestAuthService_RegisterDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	_, err = f.auth.Register(ctx, RegisterInput{
		Name:     "alice",
		Password: "other",
		Uploads:  []AttachmentUpload{{Kind: domain.AttachmentProfileImage, ContentType: "image/png", Data: []byte("png")}},
	}, events.Actor{})
	requireCode(t, err, apperrors.CodeConflict)
	assert.Zero(t, f.attachments.Len(), "uploads of a rejected registration are removed")
}

func TestAuthService_RegisterStoresAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, RegisterInput{
		Name:     "alice",
		Password: "p@ss",
		Uploads: []AttachmentUpload{
			{Kind: domain.AttachmentProfileImage, ContentType: "image/png", Data: []byte("png-bytes")},
			{Kind: domain.AttachmentDocument, Data: []byte("pdf")},
		},
	}, events.Actor{})
	require.NoError(t, err)

	require.NotNil(t, user.ProfileImage)
	require.NotNil(t, user.Document)
	assert.Equal(t, int64(len("png-bytes")), user.ProfileImage.Size)
	assert.Equal(t, "application/octet-stream", user.Document.ContentType)
	assert.Equal(t, 2, f.attachments.Len())

	blob, err := f.attachments.Get(ctx, user.ProfileImage.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), blob.Data)
}

func TestAuthService_LoginIssuesVerifiableToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	result, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)

	identity, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, identity.UserID)
	assert.Equal(t, result.ExpiresAt.Unix(), identity.ExpiresAt.Unix())
	assert.Equal(t, events.EventLoginSucceeded, f.recorded.last().Type)
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	_, wrongPassword := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "nope"})
	_, unknownName := f.auth.Login(ctx, LoginInput{Name: "bob", Password: "p@ss"})

	for _, err := range []error{wrongPassword, unknownName} {
		requireCode(t, err, apperrors.CodeInvalidCredentials)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	assert.Equal(t, apperrors.ToDomainError(wrongPassword).Message, apperrors.ToDomainError(unknownName).Message)
	assert.Equal(t, apperrors.ToDomainError(wrongPassword).HTTPStatus, apperrors.ToDomainError(unknownName).HTTPStatus)

	failed := f.recorded.last()
	assert.Equal(t, events.EventLoginFailed, failed.Type)
	assert.Equal(t, "unknown_account", failed.Payload.(events.LoginFailedPayload).Reason)
}

func TestAuthService_LoginCorruptHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.users.Create(ctx, &domain.User{Name: "broken", PasswordHash: "not-bcrypt", Role: domain.RoleUser}))

	_, err := f.auth.Login(ctx, LoginInput{Name: "broken", Password: "p@ss"})
	requireCode(t, err, apperrors.CodeInternal)
}

func TestAuthService_LoginStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.auth.users = unavailableUsers{f.users}

	_, err := f.auth.Login(context.Background(), LoginInput{Name: "alice", Password: "p@ss"})
	requireCode(t, err, apperrors.CodeStoreUnavailable)
}

func TestAuthService_EnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, created, err := f.auth.EnsureAdmin(ctx, "root", "s3cret")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.RoleAdmin, admin.Role)

	again, created, err := f.auth.EnsureAdmin(ctx, "root", "different")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, admin.ID, again.ID)

	_, err = f.auth.Login(ctx, LoginInput{Name: "root", Password: "s3cret"})
	assert.NoError(t, err)
}

func TestAuthService_LoginTrimsName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	counters := f.withLimiter(3)

	user, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, LoginInput{Name: " alice\t", Password: "nope", IP: "10.0.0.1"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)
	assert.Equal(t, "alice", f.recorded.last().Payload.(events.LoginFailedPayload).Name)
	assert.Equal(t, int64(1), counters.Value("login_attempts:10.0.0.1:alice"))

	result, err := f.auth.Login(ctx, LoginInput{Name: "  alice ", Password: "p@ss", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, result.User.ID)
	assert.Zero(t, counters.Value("login_attempts:10.0.0.1:alice"))
}

func TestAuthService_LoginThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withLimiter(3)

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "nope", IP: "10.0.0.1"})
		requireCode(t, err, apperrors.CodeInvalidCredentials)
	}

	_, err = f.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", IP: "10.0.0.1"})
	requireCode(t, err, apperrors.CodeTooManyRequests)
	assert.Equal(t, 60, apperrors.ToDomainError(err).Details["retry_after_seconds"])

	_, err = f.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", IP: "10.0.0.2"})
	assert.NoError(t, err, "other addresses are not throttled")
}

func TestAuthService_LoginSuccessResetsAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withLimiter(3)

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	for round := 0; round < 3; round++ {
		for i := 0; i < 2; i++ {
			_, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "nope", IP: "10.0.0.1"})
			requireCode(t, err, apperrors.CodeInvalidCredentials)
		}
		_, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "p@ss", IP: "10.0.0.1"})
		require.NoError(t, err, "round %d", round)
	}
}

func TestAuthService_ConcurrentGuessesAreBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.withLimiter(3)

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{})
	require.NoError(t, err)

	var evaluated, throttled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "guess", IP: "10.0.0.1"})
			switch apperrors.ToDomainError(err).Code {
			case apperrors.CodeInvalidCredentials:
				evaluated.Add(1)
			case apperrors.CodeTooManyRequests:
				throttled.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), evaluated.Load())
	assert.Equal(t, int32(17), throttled.Load())
}

func TestAuthService_LoginLimiterFailsOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	counters := f.withLimiter(1)
	counters.Fail(errors.New("dial tcp: connection refused"))

	_, err := f.auth.Register(ctx, RegisterInput{Name: "alice", Password: "p@ss"}, events.Actor{IP: "10.0.0.1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.auth.Login(ctx, LoginInput{Name: "alice", Password: "nope", IP: "10.0.0.1"})
		requireCode(t, err, apperrors.CodeInvalidCredentials)
	}
}

func TestAuthService_RegisterConflictsAreThrottled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	counters := f.withLimiter(2)
	prober := events.Actor{IP: "10.0.0.9"}

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := f.auth.Register(ctx, RegisterInput{Name: name, Password: "p@ss"}, prober)
		require.NoError(t, err)
	}
	assert.Zero(t, counters.Value("registration_conflicts:10.0.0.9"), "successful registrations hand their slot back")

	for _, name := range []string{"alice", "bob"} {
		_, err := f.auth.Register(ctx, RegisterInput{Name: name, Password: "p@ss"}, prober)
		requireCode(t, err, apperrors.CodeConflict)
	}

	_, err := f.auth.Register(ctx, RegisterInput{Name: "carol", Password: "p@ss"}, prober)
	requireCode(t, err, apperrors.CodeTooManyRequests)
	_, err = f.auth.Register(ctx, RegisterInput{Name: "dave", Password: "p@ss"}, prober)
	requireCode(t, err, apperrors.CodeTooManyRequests)
	assert.Equal(t, 60, apperrors.ToDomainError(err).Details["retry_after_seconds"])

	_, err = f.auth.Register(ctx, RegisterInput{Name: "dave", Password: "p@ss"}, events.Actor{IP: "10.0.0.10"})
	assert.NoError(t, err)
}
