package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{name: "domain error", err: NewForbidden("nope"), wantCode: CodeForbidden, wantStatus: http.StatusForbidden},
		{name: "wrapped domain error", err: fmt.Errorf("ctx: %w", NewInvalidCredentials(errors.New("bad pair"))), wantCode: CodeInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "fiber error", err: fiber.NewError(http.StatusBadRequest, "invalid payload"), wantCode: CodeValidation, wantStatus: http.StatusBadRequest},
		{name: "fiber not found", err: fiber.ErrNotFound, wantCode: CodeNotFound, wantStatus: http.StatusNotFound},
		{name: "deadline", err: fmt.Errorf("find: %w", context.DeadlineExceeded), wantCode: CodeStoreUnavailable, wantStatus: http.StatusServiceUnavailable},
		{name: "plain error", err: errors.New("boom"), wantCode: CodeInternal, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
		})
	}
}

func TestToDomainError_Nil(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("pq: relation users does not exist")
	de := ToDomainError(NewInternalError(cause))

	assert.Equal(t, "internal server error", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestNewInvalidCredentials_WrapsCause(t *testing.T) {
	cause := errors.New("invalid credentials")
	de := ToDomainError(NewInvalidCredentials(cause))

	assert.Equal(t, CodeInvalidCredentials, de.Code)
	assert.Equal(t, http.StatusUnauthorized, de.HTTPStatus)
	assert.Equal(t, "invalid credentials", de.Message)
	assert.ErrorIs(t, de, cause)
}

func TestNewTooManyRequests_RoundsRetryAfter(t *testing.T) {
	de := ToDomainError(NewTooManyRequests("too many login attempts", 89*time.Second+600*time.Millisecond))

	assert.Equal(t, CodeTooManyRequests, de.Code)
	assert.Equal(t, http.StatusTooManyRequests, de.HTTPStatus)
	assert.Equal(t, 90, de.Details["retry_after_seconds"])
}
