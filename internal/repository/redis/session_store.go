package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/account-service/internal/core/domain"
	"github.com/arklim/account-service/internal/core/port"
	"github.com/arklim/account-service/internal/repository"
)

const defaultSessionPrefix = "session"

// SessionStore keeps sessions under {prefix}:{token hash} and indexes them per user
// under {prefix}:user:{user id} so that all of a user's sessions can be revoked at once.
type SessionStore struct {
	client *red.Client
	prefix string
}

var _ port.SessionStore = (*SessionStore)(nil)

// NewSessionStore constructs a Redis-backed session store.
func NewSessionStore(client *red.Client, keyPrefix string) *SessionStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSessionPrefix
	}
	return &SessionStore{client: client, prefix: prefix}
}

// Save stores the session with the supplied TTL and records it in the user's index.
func (s *SessionStore) Save(ctx context.Context, tokenHash string, session domain.Session, ttl time.Duration) error {
	if strings.TrimSpace(tokenHash) == "" {
		return fmt.Errorf("token hash is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	userKey := s.userKey(session.UserID)
	current, err := s.client.TTL(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("redis ttl user sessions: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(tokenHash), payload, ttl)
	pipe.SAdd(ctx, userKey, tokenHash)
	// The index must outlive its longest member.
	if current < ttl {
		pipe.Expire(ctx, userKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get loads the session, returning repository.ErrNotFound when it is missing or expired.
func (s *SessionStore) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	if strings.TrimSpace(tokenHash) == "" {
		return nil, repository.ErrNotFound
	}

	payload, err := s.client.Get(ctx, s.sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes a single session.
func (s *SessionStore) Delete(ctx context.Context, tokenHash string) error {
	session, err := s.Get(ctx, tokenHash)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(tokenHash))
	pipe.SRem(ctx, s.userKey(session.UserID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of userID and reports how many were live.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	userKey := s.userKey(userID)
	hashes, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis list user sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, s.sessionKey(hash))
	}

	var removed int64
	if len(keys) > 0 {
		removed, err = s.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis delete user sessions: %w", err)
		}
	}

	if err := s.client.Del(ctx, userKey).Err(); err != nil {
		return 0, fmt.Errorf("redis delete user index: %w", err)
	}

	return int(removed), nil
}

func (s *SessionStore) sessionKey(tokenHash string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenHash)
}

func (s *SessionStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}
