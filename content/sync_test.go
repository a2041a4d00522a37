package content_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/posts"
	. "github.com/bobg/posts/content"
	"github.com/bobg/posts/content/mem"
)

func listAll(ctx context.Context, t *testing.T, s posts.Lister) []posts.ContentID {
	var ids []posts.ContentID
	err := s.ListIDs(ctx, "", func(id posts.ContentID) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return ids
}

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]posts.Lister, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}
			if _, _, err := s.Put(ctx, []byte(word)); err != nil {
				t.Fatal(err)
			}
		}
	}

	n, err := Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(words) {
		t.Errorf("copied %d blobs, want %d", n, len(words))
	}

	want := listAll(ctx, t, stores[0])
	if len(want) != len(words) {
		t.Fatalf("store 0 has %d blobs, want %d", len(want), len(words))
	}
	for i := 1; i < len(stores); i++ {
		if diff := cmp.Diff(want, listAll(ctx, t, stores[i])); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	n, err = Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second sync copied %d blobs", n)
	}
}

func TestMergeIDs(t *testing.T) {
	var (
		ctx = context.Background()
		m1  = mem.New()
		m2  = mem.New()
	)
	a, _, _ := m1.Put(ctx, []byte("a"))
	b, _, _ := m2.Put(ctx, []byte("b"))
	c, _, _ := m1.Put(ctx, []byte("c"))
	if _, _, err := m2.Put(ctx, []byte("c")); err != nil {
		t.Fatal(err)
	}

	want := map[posts.ContentID][]bool{
		a: {true, false},
		b: {false, true},
		c: {true, true},
	}
	got := make(map[posts.ContentID][]bool)
	var prev posts.ContentID
	err := MergeIDs(ctx, []posts.Lister{m1, m2}, "", func(id posts.ContentID, have []bool) error {
		if id <= prev {
			t.Errorf("%s listed after %s", id, prev)
		}
		prev = id
		got[id] = have
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
