package port

import (
	"context"

	"github.com/arklim/account-service/internal/core/domain"
)

// RoleRepository handles roles and user-role membership.
type RoleRepository interface {
	List(ctx context.Context) ([]domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)
	ListNamesByUsers(ctx context.Context, userIDs []string) (map[string][]string, error)
	AddUser(ctx context.Context, userID string, roleIDs []string) error
	RemoveUser(ctx context.Context, userID string, roleIDs []string) error
}

// ClaimRepository manages claims attached to users.
type ClaimRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Claim, error)
	Upsert(ctx context.Context, userID string, claims []domain.Claim) error
	Remove(ctx context.Context, userID string, claimTypes []string) error
}
