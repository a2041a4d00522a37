// Package mem implements an in-memory content store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// Store is a memory-based implementation of a content store.
type Store struct {
	mu    sync.Mutex
	blobs map[posts.ContentID][]byte
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[posts.ContentID][]byte),
	}
}

// Get gets the blob with the given ID.
func (s *Store) Get(_ context.Context, id posts.ContentID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[id]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, posts.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b []byte) (posts.ContentID, bool, error) {
	id, err := posts.ComputeID(b)
	if err != nil {
		return "", false, posts.Mark(err, posts.ErrStoreWriteFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; ok {
		return id, false, nil
	}
	s.blobs[id] = append([]byte(nil), b...)
	return id, true, nil
}

// ListIDs produces all blob IDs in the store, in lexicographic order.
func (s *Store) ListIDs(_ context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	s.mu.Lock()
	ids := make([]posts.ContentID, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	index := sort.Search(len(ids), func(n int) bool {
		return ids[n] > start
	})

	for i := index; i < len(ids); i++ {
		err := f(ids[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Ping implements posts.Pinger.
func (s *Store) Ping(context.Context) error {
	return nil
}

func init() {
	content.Register("mem", func(context.Context, map[string]interface{}) (posts.ContentStore, error) {
		return New(), nil
	})
}
