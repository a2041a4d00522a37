package orphan

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

// Keep is a set of content IDs that are accounted for.
type Keep interface {
	// Add adds an ID to the Keep.
	// It returns true if it was newly added and false if it was already present.
	Add(context.Context, posts.ContentID) (bool, error)

	// Contains tells whether an ID is in the Keep.
	Contains(context.Context, posts.ContentID) (bool, error)
}

// MemKeep is a memory-based Keep.
type MemKeep struct {
	mu  sync.Mutex
	ids map[posts.ContentID]struct{}
}

var _ Keep = &MemKeep{}

// NewMemKeep produces an empty MemKeep.
func NewMemKeep() *MemKeep {
	return &MemKeep{ids: make(map[posts.ContentID]struct{})}
}

// Add implements Keep.
func (k *MemKeep) Add(_ context.Context, id posts.ContentID) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.ids[id]; ok {
		return false, nil
	}
	k.ids[id] = struct{}{}
	return true, nil
}

// Contains implements Keep.
func (k *MemKeep) Contains(_ context.Context, id posts.ContentID) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.ids[id]
	return ok, nil
}

// Len is the number of IDs in the Keep.
func (k *MemKeep) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.ids)
}

// AddAnchored adds the content reference of every ledger entry to k.
// References are normalized first,
// so a CID written in a different base still matches the stored ID;
// malformed references are added verbatim.
func AddAnchored(ctx context.Context, k Keep, l posts.LedgerReader) error {
	entries, err := l.ListPosts(ctx)
	if err != nil {
		return errors.Wrap(err, "listing ledger posts")
	}
	for _, e := range entries {
		id := e.ContentRef
		if parsed, err := posts.ParseContentID(string(id)); err == nil {
			id = parsed
		}
		if _, err := k.Add(ctx, id); err != nil {
			return errors.Wrapf(err, "adding %s", id)
		}
	}
	return nil
}
