package attendance

import (
	"context"

	"github.com/pkg/errors"

	"deptattendance/internal/store"
)

// DefaultKey is the key the document is stored under.
const DefaultKey = "data"

// Repository persists the document as one value of a key-value store.
// Every read decodes the whole document and every write replaces it.
type Repository struct {
	kv  store.KV
	key string
}

// NewRepository creates a repo. An empty key means DefaultKey.
func NewRepository(kv store.KV, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{kv: kv, key: key}
}

// load returns the current document, or an empty one when nothing is stored.
func (r *Repository) load(ctx context.Context) (*document, error) {
	data, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return emptyDocument(), nil
		}
		return nil, errors.Wrap(err, "loading document")
	}
	return decodeDocument(data)
}

// update runs fn against a freshly decoded document and writes the result back.
// Nothing is written when fn returns an error.
func (r *Repository) update(ctx context.Context, fn func(doc *document) error) error {
	return r.kv.Update(ctx, r.key, func(cur []byte) ([]byte, error) {
		doc, err := decodeDocument(cur)
		if err != nil {
			return nil, err
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		return encodeDocument(doc)
	})
}

// replace overwrites the stored document with doc.
func (r *Repository) replace(ctx context.Context, doc *document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return r.kv.Update(ctx, r.key, func([]byte) ([]byte, error) { return data, nil })
}

// seedIfAbsent writes doc only when nothing is stored yet. An existing value
// is checked but left untouched.
func (r *Repository) seedIfAbsent(ctx context.Context, doc *document) error {
	return r.kv.Update(ctx, r.key, func(cur []byte) ([]byte, error) {
		if cur != nil {
			if _, err := decodeDocument(cur); err != nil {
				return nil, err
			}
			return cur, nil
		}
		return encodeDocument(doc)
	})
}
