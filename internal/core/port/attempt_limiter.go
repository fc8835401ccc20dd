package port

import (
	"context"
	"time"
)

// AttemptWindow describes a sliding window right after a Hit.
type AttemptWindow struct {
	// Allowed is false when the window was already full; the attempt is then not stored.
	Allowed bool
	// Count includes the current attempt when Allowed.
	Count int
	// Oldest is the earliest attempt still inside the window.
	Oldest time.Time
}

// AttemptLimiter counts attempts per key inside a sliding window.
type AttemptLimiter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (AttemptWindow, error)
}
