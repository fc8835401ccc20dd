package port

import (
	"context"

	"github.com/arklim/account-service/internal/core/domain"
)

// ProfileRepository persists per-user UI preferences.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Upsert(ctx context.Context, profile domain.UserProfile) error
	GetLastPageVisitedByUsername(ctx context.Context, username string) (string, error)
}

// ApiLogRepository stores the append-only API call log.
type ApiLogRepository interface {
	Insert(ctx context.Context, entry domain.ApiLogEntry) error
	List(ctx context.Context, limit int) ([]domain.ApiLogEntry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.ApiLogEntry, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
