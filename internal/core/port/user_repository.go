package port

import (
	"context"
	"time"

	"github.com/arklim/account-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash, securityStamp string, changedAt time.Time) error
	ConfirmEmail(ctx context.Context, id, securityStamp string, confirmedAt time.Time) error
	UpdateLockout(ctx context.Context, id string, failedCount int, lockoutEnd *time.Time) error
	// IncrementAccessFailed atomically bumps the failure counter and returns the new value.
	IncrementAccessFailed(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context) (int, error)
}

// UserFilter controls pagination when listing users.
type UserFilter struct {
	Limit  int
	Offset int
}
