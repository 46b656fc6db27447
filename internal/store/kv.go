package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrKeyNotFound is returned by Get when nothing is stored under the key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Update when concurrent writers kept invalidating the read.
	ErrConflict = errors.New("too many concurrent updates")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")
)

// UpdateFunc receives the current value (nil when absent) and returns the value to write.
// Returning an error aborts the update without writing.
type UpdateFunc func(cur []byte) ([]byte, error)

// KV is a byte store addressed by key. Update is an atomic read-modify-write of one key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// Options carries the connection settings of every backend; only the selected one is used.
type Options struct {
	DatabaseURL string
	SQLitePath  string
	RedisAddr   string
}

// Open connects to the named backend: memory, redis, postgres or sqlite.
func Open(ctx context.Context, backend string, opts Options) (KV, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		r := NewRedis(opts.RedisAddr)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, errors.Wrap(err, "connecting to redis")
		}
		return r, nil
	case "postgres":
		return NewPostgres(ctx, opts.DatabaseURL)
	case "sqlite":
		return NewSQLite(ctx, opts.SQLitePath)
	default:
		return nil, errors.Wrap(ErrUnknownBackend, backend)
	}
}

// Memory keeps values in a map. Used for tests and local development.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ KV = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), val...), nil
}

// Update holds the lock for the whole read-modify-write.
func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur []byte
	if val, ok := m.data[key]; ok {
		cur = append([]byte(nil), val...)
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
