// Package testutil holds tests shared by the ContentStore implementations
// and fakes for testing the code that calls them.
package testutil

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

// ReadWrite permits testing a ContentStore implementation
// by writing some data to it twice,
// then reading it back out to make sure it's the same.
func ReadWrite(ctx context.Context, t *testing.T, store posts.ContentStore, data []byte) {
	t1 := time.Now()
	id, added, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("first Put did not add the blob")
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	id2, _, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Errorf("second Put produced id %s, want %s", id2, id)
	}

	t2 := time.Now()
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes back, want %d bytes; contents differ", len(got), len(data))
	}
}

// NotFound checks that store reports ErrNotFound for an ID it never stored.
func NotFound(ctx context.Context, t *testing.T, store posts.ContentStore) {
	id, err := posts.ComputeID([]byte("never stored in any test store"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Get(ctx, id)
	if !errors.Is(err, posts.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}
