package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/account-service/internal/core/port"
)

const defaultAttemptPrefix = "rate-limit"

var errInvalidWindow = errors.New("rate limit window and limit must be positive")

// AttemptStoreConfig controls key naming and the minimum key lifetime.
type AttemptStoreConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// AttemptStore keeps one sorted set per key. Scores are attempt times in unix milliseconds.
type AttemptStore struct {
	client *red.Client
	cfg    AttemptStoreConfig
}

var _ port.AttemptLimiter = (*AttemptStore)(nil)

// NewAttemptStore builds an AttemptStore on top of client.
func NewAttemptStore(client *red.Client, cfg AttemptStoreConfig) *AttemptStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultAttemptPrefix
	}
	return &AttemptStore{client: client, cfg: cfg}
}

// Hit drops expired attempts, then records a new one unless the window already holds limit attempts.
func (s *AttemptStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (port.AttemptWindow, error) {
	if limit <= 0 || window <= 0 {
		return port.AttemptWindow{}, errInvalidWindow
	}

	setKey := s.cfg.KeyPrefix + ":" + key
	floor := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	var (
		size  *red.IntCmd
		first *red.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, setKey, "-inf", "("+floor)
		size = pipe.ZCard(ctx, setKey)
		first = pipe.ZRangeWithScores(ctx, setKey, 0, 0)
		return nil
	})
	if err != nil {
		return port.AttemptWindow{}, fmt.Errorf("redis read attempts %s: %w", key, err)
	}

	state := port.AttemptWindow{Count: int(size.Val())}
	if oldest := first.Val(); len(oldest) > 0 {
		state.Oldest = time.UnixMilli(int64(oldest[0].Score))
	}
	if state.Count >= limit {
		return state, nil
	}

	// uuid suffix keeps concurrent attempts in the same millisecond distinct.
	member := red.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString(),
	}
	_, err = s.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.ZAdd(ctx, setKey, member)
		pipe.PExpire(ctx, setKey, max(window, s.cfg.TTL))
		return nil
	})
	if err != nil {
		return port.AttemptWindow{}, fmt.Errorf("redis record attempt %s: %w", key, err)
	}

	state.Allowed = true
	state.Count++
	if state.Oldest.IsZero() {
		state.Oldest = time.UnixMilli(now.UnixMilli())
	}
	return state, nil
}
