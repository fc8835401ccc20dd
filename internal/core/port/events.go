package port

import (
	"context"

	"github.com/arklim/account-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserDeleted(ctx context.Context, event domain.UserDeletedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishRolesAssigned(ctx context.Context, event domain.RolesAssignedEvent) error
	PublishRolesRevoked(ctx context.Context, event domain.RolesRevokedEvent) error
	PublishEmailRequested(ctx context.Context, event domain.EmailRequestedEvent) error
}
