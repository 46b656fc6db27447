package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendByte(b byte) UpdateFunc {
	return func(cur []byte) ([]byte, error) {
		return append(cur, b), nil
	}
}

// exerciseKV runs the behaviour every backend must share.
func exerciseKV(t *testing.T, kv KV) {
	ctx := context.Background()

	_, err := kv.Get(ctx, "data")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	var seen []byte
	err = kv.Update(ctx, "data", func(cur []byte) ([]byte, error) {
		seen = cur
		return []byte("a"), nil
	})
	require.NoError(t, err)
	assert.Nil(t, seen, "absent key must be passed as nil")

	require.NoError(t, kv.Update(ctx, "data", appendByte('b')))
	val, err := kv.Get(ctx, "data")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(val))

	abort := errors.New("abort")
	err = kv.Update(ctx, "data", func([]byte) ([]byte, error) { return []byte("zzz"), abort })
	assert.ErrorIs(t, err, abort)
	val, err = kv.Get(ctx, "data")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(val), "aborted update must not write")

	assert.NoError(t, kv.Ping(ctx))
}

func TestMemory(t *testing.T) {
	exerciseKV(t, NewMemory())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Update(ctx, "k", func([]byte) ([]byte, error) { return []byte("abc"), nil }))

	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	val[0] = 'x'

	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemory_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Update(ctx, "k", appendByte('x'))
		}()
	}
	wg.Wait()

	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, val, 50)
}

func newTestRedis(t *testing.T) *Redis {
	srv := miniredis.RunT(t)
	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedis(t *testing.T) {
	exerciseKV(t, newTestRedis(t))
}

func TestRedis_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	r := newTestRedis(t)
	r.maxRetries = 1000

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Update(ctx, "k", appendByte('x')))
		}()
	}
	wg.Wait()

	val, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Len(t, val, 10)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, "memory", Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, kv)

	srv := miniredis.RunT(t)
	kv, err = Open(ctx, "redis", Options{RedisAddr: srv.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, kv)
	_ = kv.Close()

	_, err = Open(ctx, "etcd", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
