package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token ids until the tokens would have expired.
type Denylist interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	Revoked(ctx context.Context, id string) (bool, error)
}

// MemoryDenylist keeps revoked ids in process memory.
type MemoryDenylist struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{until: make(map[string]time.Time), now: time.Now}
}

// Revoke marks id as revoked. Expired entries are swept on each call.
func (d *MemoryDenylist) Revoke(_ context.Context, id string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.until {
		if !exp.After(now) {
			delete(d.until, k)
		}
	}
	if until.After(now) {
		d.until[id] = until
	}
	return nil
}

func (d *MemoryDenylist) Revoked(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.until[id]
	return ok && exp.After(d.now()), nil
}

// RedisDenylist stores revoked ids as keys expiring with the token.
type RedisDenylist struct {
	client *redis.Client
	prefix string
}

func NewRedisDenylist(client *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "attendance:revoked:"
	}
	return &RedisDenylist{client: client, prefix: prefix}
}

func (d *RedisDenylist) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+id, 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "revoking token")
	}
	return nil
}

func (d *RedisDenylist) Revoked(ctx context.Context, id string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+id).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking revoked token")
	}
	return n > 0, nil
}
