package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("stub event published", append(base, fields...)...)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt,
		zap.String("username", event.Username),
		zap.String("email", logger.MaskEmail(event.Email)),
		zap.Bool("email_confirmed", event.EmailConfirmed),
	)
	return nil
}

func (p *StubPublisher) PublishUserDeleted(_ context.Context, event domain.UserDeletedEvent) error {
	p.logEvent(EventUserDeleted, event.UserID, event.DeletedAt,
		zap.String("deleted_by", event.DeletedBy),
		zap.Int64("api_logs_removed", event.ApiLogsRemoved),
		zap.Int("sessions_revoked", event.SessionsRevoked),
	)
	return nil
}

func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent(EventPasswordChanged, event.UserID, event.ChangedAt,
		zap.String("changed_by", event.ChangedBy),
		zap.String("method", event.Method),
		zap.Int("sessions_revoked", event.SessionsRevoked),
	)
	return nil
}

func (p *StubPublisher) PublishRolesAssigned(_ context.Context, event domain.RolesAssignedEvent) error {
	p.logEvent(EventRolesAssigned, event.UserID, event.AssignedAt,
		zap.Strings("roles_added", event.RolesAdded),
		zap.String("assigned_by", event.AssignedBy),
	)
	return nil
}

func (p *StubPublisher) PublishRolesRevoked(_ context.Context, event domain.RolesRevokedEvent) error {
	p.logEvent(EventRolesRevoked, event.UserID, event.RevokedAt,
		zap.Strings("roles_removed", event.RolesRemoved),
		zap.String("revoked_by", event.RevokedBy),
	)
	return nil
}

func (p *StubPublisher) PublishEmailRequested(_ context.Context, event domain.EmailRequestedEvent) error {
	masked := make([]string, 0, len(event.To))
	for _, to := range event.To {
		masked = append(masked, logger.MaskEmail(to))
	}
	p.logEvent(EventEmailRequested, "", event.RequestedAt,
		zap.Strings("to", masked),
		zap.String("template", event.Template),
		zap.String("subject", event.Subject),
	)
	return nil
}
