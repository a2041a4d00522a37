package content

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

// Sync copies blobs among two or more stores
// until each holds every blob any of them holds.
// It reports how many copies it made.
//
// The stores must share an addressing scheme:
// a blob copied into a store that files it under a different ID
// fails the sync with ErrStoreWriteFailed.
func Sync(ctx context.Context, stores []posts.Lister) (int, error) {
	if len(stores) < 2 {
		return 0, nil
	}

	var copied int
	err := MergeIDs(ctx, stores, "", func(id posts.ContentID, have []bool) error {
		src := -1
		for i, h := range have {
			if h {
				src = i
				break
			}
		}

		var b []byte
		for i, h := range have {
			if h {
				continue
			}
			if b == nil {
				var err error
				b, err = stores[src].Get(ctx, id)
				if err != nil {
					return errors.Wrapf(err, "getting %s", id)
				}
			}
			got, _, err := stores[i].Put(ctx, b)
			if err != nil {
				return errors.Wrapf(err, "storing %s", id)
			}
			if got != id {
				return posts.Mark(fmt.Errorf("store %d filed %s as %s", i, id, got), posts.ErrStoreWriteFailed)
			}
			copied++
		}
		return nil
	})
	return copied, err
}
