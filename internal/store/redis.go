package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultMaxRetries = 10

// Redis stores values as plain Redis strings.
type Redis struct {
	Client     *redis.Client
	maxRetries int
}

var _ KV = (*Redis)(nil)

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return NewRedisFromClient(client)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{Client: client, maxRetries: defaultMaxRetries}
}

// Get returns ErrKeyNotFound for a missing key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, errors.Wrapf(err, "redis get %s", key)
	}
	return val, nil
}

// Update watches key, applies fn and commits in MULTI/EXEC. The transaction is
// retried when another client wrote the key in between.
func (r *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		var fnErr error
		err := r.Client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				fnErr = err
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, next, 0)
				return nil
			})
			return err
		}, key)
		switch {
		case fnErr != nil:
			return fnErr
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return errors.Wrapf(err, "redis update %s", key)
		}
	}
	return ErrConflict
}

// Ping verifies redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
