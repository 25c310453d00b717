package auth

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher() *Hasher {
	return NewHasher(bcrypt.MinCost, 2)
}

func TestHasher_HashAndVerify(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	tests := []struct {
		name   string
		secret string
	}{
		{name: "short", secret: "p@ss"},
		{name: "unicode", secret: "пароль-密码"},
		{name: "max length", secret: strings.Repeat("a", MaxPasswordBytes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed, err := h.Hash(ctx, tt.secret)
			require.NoError(t, err)
			assert.NotEqual(t, tt.secret, hashed)

			ok, err := h.Verify(ctx, tt.secret, hashed)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify(ctx, tt.secret+"x", hashed)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_SaltsEachHash(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	first, err := h.Hash(ctx, "p@ss")
	require.NoError(t, err)
	second, err := h.Hash(ctx, "p@ss")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	for _, stored := range []string{first, second} {
		ok, err := h.Verify(ctx, "p@ss", stored)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestHasher_RejectsInvalidSecrets(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	_, err := h.Hash(ctx, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = h.Hash(ctx, strings.Repeat("a", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestHasher_VerifyStoredEdgeCases(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	ok, err := h.Verify(ctx, "anything", "")
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = h.Verify(ctx, "anything", "not-a-bcrypt-hash")
	assert.ErrorIs(t, err, ErrCorruptCredential)
	assert.False(t, ok)

	hashed, err := h.Hash(ctx, "p@ss")
	require.NoError(t, err)
	ok, err = h.Verify(ctx, strings.Repeat("a", 100), hashed)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, NewHasher(1, 1).Cost())
	assert.Equal(t, bcrypt.MaxCost, NewHasher(99, 1).Cost())
}

func TestHasher_CancelledWhileQueued(t *testing.T) {
	h := NewHasher(bcrypt.MinCost, 1)
	require.NoError(t, h.slots.Acquire(context.Background(), 1))
	defer h.slots.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Hash(ctx, "p@ss")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasher_Concurrent(t *testing.T) {
	h := newTestHasher()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hashed, err := h.Hash(ctx, "p@ss")
			if err != nil {
				errs <- err
				return
			}
			if ok, err := h.Verify(ctx, "p@ss", hashed); err != nil || !ok {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent hash/verify failed: %v", err)
	}
}
