package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types; the producer prepends the configured topic prefix.
const (
	EventUserRegistered  = "user.registered"
	EventUserDeleted     = "user.deleted"
	EventPasswordChanged = "user.password.changed"
	EventRolesAssigned   = "user.roles.assigned"
	EventRolesRevoked    = "user.roles.revoked"
	EventEmailRequested  = "email.requested"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	topic := p.producer.TopicName(eventType)
	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	return p.producer.Send(ctx, topic, userID, bytes)
}

// PublishUserRegistered publishes account.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID         string         `json:"user_id"`
		Username       string         `json:"username"`
		Email          string         `json:"email"`
		EmailConfirmed bool           `json:"email_confirmed"`
		RegisteredAt   time.Time      `json:"registered_at"`
		RegisteredBy   string         `json:"registered_by,omitempty"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		UserID:         event.UserID,
		Username:       event.Username,
		Email:          event.Email,
		EmailConfirmed: event.EmailConfirmed,
		RegisteredAt:   event.RegisteredAt.UTC(),
		RegisteredBy:   event.RegisteredBy,
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishUserDeleted publishes account.user.deleted events.
func (p *EventPublisher) PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		DeletedBy       string         `json:"deleted_by"`
		DeletedAt       time.Time      `json:"deleted_at"`
		ApiLogsRemoved  int64          `json:"api_logs_removed"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		DeletedBy:       event.DeletedBy,
		DeletedAt:       event.DeletedAt.UTC(),
		ApiLogsRemoved:  event.ApiLogsRemoved,
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventUserDeleted, event.UserID, event.DeletedAt, payload)
}

// PublishPasswordChanged publishes account.user.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		UserID          string         `json:"user_id"`
		ChangedAt       time.Time      `json:"changed_at"`
		ChangedBy       string         `json:"changed_by"`
		Method          string         `json:"method"`
		SessionsRevoked int            `json:"sessions_revoked"`
		Metadata        map[string]any `json:"metadata,omitempty"`
	}{
		UserID:          event.UserID,
		ChangedAt:       event.ChangedAt.UTC(),
		ChangedBy:       event.ChangedBy,
		Method:          event.Method,
		SessionsRevoked: event.SessionsRevoked,
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventPasswordChanged, event.UserID, event.ChangedAt, payload)
}

// PublishRolesAssigned publishes account.user.roles.assigned events.
func (p *EventPublisher) PublishRolesAssigned(ctx context.Context, event domain.RolesAssignedEvent) error {
	payload := struct {
		UserID     string         `json:"user_id"`
		RolesAdded []string       `json:"roles_added"`
		AssignedBy string         `json:"assigned_by"`
		AssignedAt time.Time      `json:"assigned_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		UserID:     event.UserID,
		RolesAdded: event.RolesAdded,
		AssignedBy: event.AssignedBy,
		AssignedAt: event.AssignedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventRolesAssigned, event.UserID, event.AssignedAt, payload)
}

// PublishRolesRevoked publishes account.user.roles.revoked events.
func (p *EventPublisher) PublishRolesRevoked(ctx context.Context, event domain.RolesRevokedEvent) error {
	payload := struct {
		UserID       string         `json:"user_id"`
		RolesRemoved []string       `json:"roles_removed"`
		RevokedBy    string         `json:"revoked_by"`
		RevokedAt    time.Time      `json:"revoked_at"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		UserID:       event.UserID,
		RolesRemoved: event.RolesRemoved,
		RevokedBy:    event.RevokedBy,
		RevokedAt:    event.RevokedAt.UTC(),
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventRolesRevoked, event.UserID, event.RevokedAt, payload)
}

// PublishEmailRequested publishes account.email.requested events consumed by the mail worker.
func (p *EventPublisher) PublishEmailRequested(ctx context.Context, event domain.EmailRequestedEvent) error {
	payload := struct {
		To          []string       `json:"to"`
		Subject     string         `json:"subject"`
		Body        string         `json:"body"`
		Template    string         `json:"template,omitempty"`
		RequestedAt time.Time      `json:"requested_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		To:          event.To,
		Subject:     event.Subject,
		Body:        event.Body,
		Template:    event.Template,
		RequestedAt: event.RequestedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventEmailRequested, "", event.RequestedAt, payload)
}
