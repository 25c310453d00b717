package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/events"
)

// AuditService writes account events to the audit log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventAccountRegistered, a.handleAccountRegistered)
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.handleLoginSucceeded)
	a.dispatcher.Subscribe(events.EventLoginFailed, a.handleLoginFailed)
	a.dispatcher.Subscribe(events.EventAccountUpdated, a.handleAccountUpdated)
	a.dispatcher.Subscribe(events.EventAccountsDeleted, a.handleAccountsDeleted)
}

func (a *AuditService) handleAccountRegistered(_ context.Context, event events.Event) error {
	a.logger.Info("AccountRegistered", append(a.common(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleLoginSucceeded(_ context.Context, event events.Event) error {
	a.logger.Info("LoginSucceeded", a.common(event)...)
	return nil
}

func (a *AuditService) handleLoginFailed(_ context.Context, event events.Event) error {
	a.logger.Warn("LoginFailed", append(a.common(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleAccountUpdated(_ context.Context, event events.Event) error {
	a.logger.Info("AccountUpdated", append(a.common(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) handleAccountsDeleted(_ context.Context, event events.Event) error {
	a.logger.Info("AccountsDeleted", append(a.common(event), zap.Any("payload", event.Payload))...)
	return nil
}

func (a *AuditService) common(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("account_id", event.AccountID),
		zap.String("actor_id", event.Actor.UserID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.String("ip", event.Actor.IP),
		zap.Time("at", event.Timestamp),
	}
}
