// Package lru implements a content store that acts as a least-recently-used cache for a nested content store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// Store implements a memory-based least-recently-used cache for a content store.
// Blobs are immutable,
// so a cached blob never goes stale.
// Writes pass through to the underlying store.
// Failed lookups are not cached.
type Store struct {
	c *lru.Cache // ContentID->[]byte
	s posts.ContentStore
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s posts.ContentStore, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with the given ID.
func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	if got, ok := s.c.Get(id); ok {
		return append([]byte(nil), got.([]byte)...), nil
	}
	b, err := s.s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.c.Add(id, append([]byte(nil), b...))
	return b, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	id, added, err := s.s.Put(ctx, b)
	if err != nil {
		return id, added, err
	}
	s.c.Add(id, append([]byte(nil), b...))
	return id, added, nil
}

// ListIDs passes through to the nested store,
// which must be a posts.Lister.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	l, err := content.AsLister(s.s)
	if err != nil {
		return err
	}
	return l.ListIDs(ctx, start, f)
}

// Ping delegates to the nested store, if it can ping.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.s.(posts.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func init() {
	content.Register("lru", func(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		size, ok := conf["size"].(float64) // JSON numbers decode as float64
		if !ok || size < 1 {
			return nil, errors.New(`missing or invalid "size" parameter`)
		}
		nested, err := content.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, int(size))
	})
}
