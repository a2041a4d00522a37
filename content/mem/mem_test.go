package mem

import (
	"context"
	"testing"

	"github.com/bobg/posts"
	"github.com/bobg/posts/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	testutil.ReadWrite(ctx, t, New(), []byte(`{"title":"Hello","content":"World","author":"Alice"}`))
	testutil.NotFound(ctx, t, New())
}

func TestAllIDs(t *testing.T) {
	testutil.AllIDs(context.Background(), t, func() posts.Lister { return New() })
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _, err := s.Put(ctx, []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	b[0] = 'x'
	b2, err := s.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(b2) != "abc" {
		t.Errorf("stored blob was modified through a returned slice: %q", b2)
	}
}
