package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/posts"
)

// AllIDs writes a random set of random blobs to an empty store
// and makes sure that the right set of IDs comes back in a call to ListIDs.
func AllIDs(ctx context.Context, t *testing.T, storeFactory func() posts.Lister) {
	if err := quick.Check(allIDsHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allIDsHelper(ctx context.Context, t *testing.T, storeFactory func() posts.Lister) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []posts.ContentID
		)
		for _, blob := range blobs {
			id, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, id)
			}
		}
		var got []posts.ContentID
		err := store.ListIDs(ctx, "", func(id posts.ContentID) error {
			got = append(got, id)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		if !sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }) {
			t.Logf("ListIDs produced unsorted output %v", got)
			return false
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
