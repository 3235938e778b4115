// Package registry maps validator public keys to stable validator ids.
//
// The hub resolves a key on every signup. The first signup for a key mints
// an id; later signups, on any session, get the same one back.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"uptime/pkg/platform/sentinel"
)

const keyPrefix = "uptime:validator:pk:"

// Memory keeps identities for the life of the process.
type Memory struct {
	mu    sync.Mutex
	ids   map[string]string
	newID func() string
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[string]string), newID: uuid.NewString}
}

func (m *Memory) Resolve(_ context.Context, publicKey string) (string, error) {
	if publicKey == "" {
		return "", fmt.Errorf("empty public key: %w", sentinel.ErrInvalidState)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.ids[publicKey]; ok {
		return id, nil
	}
	id := m.newID()
	m.ids[publicKey] = id
	return id, nil
}

// Redis shares identities across hub replicas. A positive ttl lets
// identities of validators that stop signing up lapse; each signup refreshes it.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	newID  func() string
}

func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, newID: uuid.NewString}
}

func (r *Redis) Resolve(ctx context.Context, publicKey string) (string, error) {
	if publicKey == "" {
		return "", fmt.Errorf("empty public key: %w", sentinel.ErrInvalidState)
	}
	key := keyPrefix + publicKey

	// A concurrent winner may expire between SETNX and GET; one retry covers it.
	for range 2 {
		id := r.newID()
		created, err := r.client.SetNX(ctx, key, id, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("register validator: %w: %v", sentinel.ErrUnavailable, err)
		}
		if created {
			return id, nil
		}

		existing, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("lookup validator: %w: %v", sentinel.ErrUnavailable, err)
		}
		if r.ttl > 0 {
			if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
				return "", fmt.Errorf("refresh validator: %w: %v", sentinel.ErrUnavailable, err)
			}
		}
		return existing, nil
	}
	return "", fmt.Errorf("register validator %s: %w", publicKey, sentinel.ErrConflict)
}
