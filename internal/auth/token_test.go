package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokens(t *testing.T, secret string) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(secret, "account-service", time.Hour)
	require.NoError(t, err)
	return tm
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	tm, err := NewTokenManager("", "account-service", time.Hour)
	assert.Nil(t, tm)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestTokenManager_IssueAndVerify(t *testing.T) {
	tm := newTestTokens(t, testSecret)

	token, expiresAt, err := tm.Issue("user-123", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	identity, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.UserID)
	assert.Equal(t, expiresAt.Unix(), identity.ExpiresAt.Unix())
}

func TestTokenManager_GenerateTokenUsesDefaultTTL(t *testing.T) {
	tm, err := NewTokenManager(testSecret, "", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, tm.TTL())

	_, expiresAt, err := tm.GenerateToken("u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestTokens(t, testSecret)

	token, _, err := tm.Issue("u1", time.Minute)
	require.NoError(t, err)

	_, err = tm.Verify(token)
	require.NoError(t, err)

	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	issuer := newTestTokens(t, "right-secret")
	verifier := newTestTokens(t, "wrong-secret")

	token, _, err := issuer.Issue("u2", time.Hour)
	require.NoError(t, err)

	identity, err := verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Empty(t, identity.UserID)
}

func TestTokenManager_TamperedPayload(t *testing.T) {
	tm := newTestTokens(t, testSecret)
	token, _, err := tm.Issue("u3", time.Hour)
	require.NoError(t, err)

	other, _, err := tm.Issue("someone-else", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	forged := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err = tm.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := newTestTokens(t, testSecret)

	claims := jwt.RegisteredClaims{
		Subject:   "u4",
		Issuer:    "account-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.Verify(hs512)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.Verify(none)
	assert.Error(t, err)
}

func TestTokenManager_Malformed(t *testing.T) {
	tm := newTestTokens(t, testSecret)

	for _, token := range []string{"", "not.a.jwt", "abc"} {
		_, err := tm.Verify(token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestTokenManager_RequiresSubjectAndExpiry(t *testing.T) {
	tm := newTestTokens(t, testSecret)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "u5",
		Issuer:  "account-service",
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.Verify(noExp)
	assert.ErrorIs(t, err, ErrMalformed)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "account-service",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = tm.Verify(noSub)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTokenManager_WrongIssuer(t *testing.T) {
	tm := newTestTokens(t, testSecret)
	foreign, err := NewTokenManager(testSecret, "other-service", time.Hour)
	require.NoError(t, err)

	token, _, err := foreign.Issue("u6", time.Hour)
	require.NoError(t, err)

	_, err = tm.Verify(token)
	assert.Error(t, err)
}
