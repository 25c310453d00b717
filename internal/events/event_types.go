package events

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered EventType = "account_registered"
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventAccountUpdated    EventType = "account_updated"
	EventAccountsDeleted   EventType = "accounts_deleted"
)

// Actor identifies who caused an event. UserID is empty for anonymous callers.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
	IP     string      `json:"ip,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AccountID string    `json:"account_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// AccountRegisteredPayload payload.
type AccountRegisteredPayload struct {
	Name        string      `json:"name"`
	Role        domain.Role `json:"role"`
	Attachments int         `json:"attachments"`
}

// LoginFailedPayload payload. Reason stays internal and is never sent to the client.
type LoginFailedPayload struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// AccountUpdatedPayload payload.
type AccountUpdatedPayload struct {
	Fields      []string    `json:"fields"`
	RoleChanged bool        `json:"role_changed"`
	NewRole     domain.Role `json:"new_role,omitempty"`
}

// AccountsDeletedPayload payload.
type AccountsDeletedPayload struct {
	Requested []string `json:"requested"`
	Deleted   int64    `json:"deleted"`
}
