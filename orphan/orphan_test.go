package orphan

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content/logging"
	"github.com/bobg/posts/content/lru"
	cmem "github.com/bobg/posts/content/mem"
	lmem "github.com/bobg/posts/ledger/mem"
)

func put(ctx context.Context, t *testing.T, s posts.ContentStore, title string, at time.Time) posts.ContentID {
	t.Helper()
	b, err := posts.ContentRecord{Title: title, Content: "c", Author: "a"}.Normalize(at).Encode()
	if err != nil {
		t.Fatal(err)
	}
	id, _, err := s.Put(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func anchor(ctx context.Context, t *testing.T, l *lmem.Ledger, id posts.ContentID) {
	t.Helper()
	r, err := l.CreatePost(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.AwaitFinality(ctx, r, time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestFind(t *testing.T) {
	var (
		ctx    = context.Background()
		store  = cmem.New()
		ledger = lmem.New()
		now    = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	)

	anchored1 := put(ctx, t, store, "anchored 1", now.Add(-time.Hour))
	anchored2 := put(ctx, t, store, "anchored 2", now.Add(-time.Hour))
	stale := put(ctx, t, store, "stale", now.Add(-time.Hour))
	fresh := put(ctx, t, store, "fresh", now.Add(-time.Second))
	junk, _, err := store.Put(ctx, []byte("not a record"))
	if err != nil {
		t.Fatal(err)
	}

	anchor(ctx, t, ledger, anchored1)
	anchor(ctx, t, ledger, anchored2)

	got, err := FindUnanchored(ctx, store, ledger, Options{
		Grace: time.Minute,
		Now:   func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []Orphan{
		{ID: stale, Title: "stale", CreatedAt: now.Add(-time.Hour), Decodable: true},
		{ID: junk},
	}
	if want[1].ID < want[0].ID {
		want[0], want[1] = want[1], want[0]
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	// Without a grace period the fresh record is reported too.
	got, err = FindUnanchored(ctx, store, ledger, Options{MaxInFlight: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Errorf("got %d orphans, want 3", len(got))
	}
	var sawFresh bool
	for _, o := range got {
		if o.ID == fresh {
			sawFresh = true
		}
	}
	if !sawFresh {
		t.Error("fresh record not reported")
	}
}

func TestAddAnchored(t *testing.T) {
	var (
		ctx    = context.Background()
		store  = cmem.New()
		ledger = lmem.New()
		now    = time.Now()
	)
	id := put(ctx, t, store, "x", now)
	anchor(ctx, t, ledger, id)
	anchor(ctx, t, ledger, id)

	k := NewMemKeep()
	if err := AddAnchored(ctx, k, ledger); err != nil {
		t.Fatal(err)
	}
	if k.Len() != 1 {
		t.Errorf("got %d ids, want 1", k.Len())
	}
	ok, err := k.Contains(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Errorf("%s not kept", id)
	}
}

func TestAddAnchoredLedgerDown(t *testing.T) {
	ledger := lmem.New()
	ledger.SetUnreachable(true)
	if err := AddAnchored(context.Background(), NewMemKeep(), ledger); err == nil {
		t.Error("got no error from an unreachable ledger")
	}
}

func TestFindThroughDecorators(t *testing.T) {
	var (
		ctx    = context.Background()
		ledger = lmem.New()
		now    = time.Now()
	)
	cache, err := lru.New(logging.New(cmem.New(), nil), 4)
	if err != nil {
		t.Fatal(err)
	}

	anchored := put(ctx, t, cache, "anchored", now.Add(-time.Hour))
	stray := put(ctx, t, cache, "stray", now.Add(-time.Hour))
	anchor(ctx, t, ledger, anchored)

	got, err := FindUnanchored(ctx, cache, ledger, Options{Grace: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != stray {
		t.Errorf("got %+v, want only %s", got, stray)
	}
}
