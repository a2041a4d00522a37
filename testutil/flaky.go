package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

// FlakyStore wraps a ContentStore and fails on demand.
// It is safe for concurrent use.
type FlakyStore struct {
	Store posts.ContentStore

	mu      sync.Mutex
	putErr  error
	getErrs map[posts.ContentID]error
	delay   time.Duration
	puts    int
	gets    int
}

// NewFlakyStore wraps s.
func NewFlakyStore(s posts.ContentStore) *FlakyStore {
	return &FlakyStore{
		Store:   s,
		getErrs: make(map[posts.ContentID]error),
	}
}

// FailPuts makes every Put fail with err until it is called again with nil.
func (f *FlakyStore) FailPuts(err error) {
	f.mu.Lock()
	f.putErr = err
	f.mu.Unlock()
}

// FailGet makes Get of id fail with err.
// A nil err removes the failure.
func (f *FlakyStore) FailGet(id posts.ContentID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.getErrs, id)
		return
	}
	f.getErrs[id] = err
}

// SetDelay makes every Get wait d before answering,
// or until its context is done.
func (f *FlakyStore) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Puts is the number of Put calls so far.
func (f *FlakyStore) Puts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

// Gets is the number of Get calls so far.
func (f *FlakyStore) Gets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// Put implements posts.ContentStore.
func (f *FlakyStore) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()

	if err != nil {
		return "", false, err
	}
	return f.Store.Put(ctx, b)
}

// Get implements posts.ContentStore.
func (f *FlakyStore) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	f.mu.Lock()
	f.gets++
	err := f.getErrs[id]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, posts.Mark(errors.Wrapf(ctx.Err(), "getting %s", id), posts.ErrStoreUnavailable)
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, id)
}

// CountingLedger wraps a Ledger and counts submissions.
type CountingLedger struct {
	posts.Ledger

	mu      sync.Mutex
	creates int
	votes   int
}

// CreatePost implements posts.Ledger.
func (c *CountingLedger) CreatePost(ctx context.Context, ref posts.ContentID) (posts.Receipt, error) {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.Ledger.CreatePost(ctx, ref)
}

// Vote implements posts.Ledger.
func (c *CountingLedger) Vote(ctx context.Context, postID uint64, dir posts.Direction) (posts.Receipt, error) {
	c.mu.Lock()
	c.votes++
	c.mu.Unlock()
	return c.Ledger.Vote(ctx, postID, dir)
}

// Creates is the number of CreatePost calls so far.
func (c *CountingLedger) Creates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

// Votes is the number of Vote calls so far.
func (c *CountingLedger) Votes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.votes
}
