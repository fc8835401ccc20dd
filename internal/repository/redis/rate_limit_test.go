package redis

import (
	"context"
	"testing"
	"time"
)

func TestAttemptStoreFillsWindowThenRejects(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{KeyPrefix: "rl"})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	for i := 1; i <= 3; i++ {
		state, err := store.Hit(ctx, "account_login_ip:203.0.113.7", 3, time.Minute, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !state.Allowed || state.Count != i {
			t.Fatalf("hit %d: unexpected state %+v", i, state)
		}
		if !state.Oldest.Equal(now.Add(time.Second)) {
			t.Fatalf("hit %d: oldest = %v", i, state.Oldest)
		}
	}

	state, err := store.Hit(ctx, "account_login_ip:203.0.113.7", 3, time.Minute, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("fourth hit: %v", err)
	}
	if state.Allowed || state.Count != 3 {
		t.Fatalf("expected rejection with full window, got %+v", state)
	}

	members, err := server.ZMembers("rl:account_login_ip:203.0.113.7")
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("rejected attempt must not be stored, got %d members", len(members))
	}
	if ttl := server.TTL("rl:account_login_ip:203.0.113.7"); ttl <= 0 {
		t.Fatalf("expected key to expire, ttl=%v", ttl)
	}
}

func TestAttemptStoreForgetsExpiredAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := store.Hit(ctx, "client", 1, time.Minute, now); err != nil {
		t.Fatalf("first hit: %v", err)
	}
	if state, _ := store.Hit(ctx, "client", 1, time.Minute, now.Add(30*time.Second)); state.Allowed {
		t.Fatalf("expected second hit inside window to be rejected")
	}

	later := now.Add(2 * time.Minute)
	state, err := store.Hit(ctx, "client", 1, time.Minute, later)
	if err != nil {
		t.Fatalf("hit after window: %v", err)
	}
	if !state.Allowed || state.Count != 1 || !state.Oldest.Equal(later) {
		t.Fatalf("expected fresh window, got %+v", state)
	}
}

func TestAttemptStoreRejectsInvalidArguments(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewAttemptStore(client, AttemptStoreConfig{})

	if _, err := store.Hit(context.Background(), "x", 5, 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, err := store.Hit(context.Background(), "x", 0, time.Minute, time.Now()); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
