package content

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/bobg/posts"
)

// MergeIDs lists the IDs of several stores at once,
// calling f once for each ID in any of them,
// in lexicographic order,
// beginning with the first ID after start.
// The have argument of f tells which of the listers hold the ID.
// If f returns an error,
// MergeIDs stops the listings and returns that error.
func MergeIDs(ctx context.Context, listers []posts.Lister, start posts.ContentID, f func(id posts.ContentID, have []bool) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	chans := make([]chan posts.ContentID, len(listers))
	for i, l := range listers {
		ch := make(chan posts.ContentID, 1)
		chans[i] = ch
		g.Go(func() error {
			defer close(ch)
			return l.ListIDs(gctx, start, func(id posts.ContentID) error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case ch <- id:
					return nil
				}
			})
		})
	}

	var (
		next = make([]posts.ContentID, len(chans))
		live = make([]bool, len(chans))
	)
	for i, ch := range chans {
		next[i], live[i] = <-ch
	}

	for {
		var (
			best  posts.ContentID
			found bool
		)
		for i, id := range next {
			if live[i] && (!found || id < best) {
				best, found = id, true
			}
		}
		if !found {
			break
		}

		have := make([]bool, len(chans))
		for i, id := range next {
			have[i] = live[i] && id == best
		}
		if err := f(best, have); err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		for i, h := range have {
			if h {
				next[i], live[i] = <-chans[i]
			}
		}
	}

	return g.Wait()
}
