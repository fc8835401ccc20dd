package port

import (
	"context"
	"time"

	"github.com/arklim/account-service/internal/core/domain"
)

// SessionStore persists sign-in sessions keyed by the hash of their token.
type SessionStore interface {
	Save(ctx context.Context, tokenHash string, session domain.Session, ttl time.Duration) error
	Get(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}
