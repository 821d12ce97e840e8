// Package statestore keeps short-lived OAuth state nonces between the login
// redirect and the provider callback.
package statestore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	// Consume reports whether state was saved and unexpired, and forgets it.
	Consume(ctx context.Context, state string) (bool, error)
}

type Memory struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{expires: map[string]time.Time{}, now: time.Now}
}

func (m *Memory) Save(_ context.Context, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for s, exp := range m.expires {
		if !exp.After(now) {
			delete(m.expires, s)
		}
	}
	m.expires[state] = now.Add(ttl)
	return nil
}

func (m *Memory) Consume(_ context.Context, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.expires[state]
	if !ok {
		return false, nil
	}
	delete(m.expires, state)
	return exp.After(m.now()), nil
}

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Redis{client: client}, nil
}

func stateKey(state string) string {
	return "oauth:state:" + state
}

func (r *Redis) Save(ctx context.Context, state string, ttl time.Duration) error {
	return r.client.SetNX(ctx, stateKey(state), "1", ttl).Err()
}

func (r *Redis) Consume(ctx context.Context, state string) (bool, error) {
	err := r.client.GetDel(ctx, stateKey(state)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
