// Package orphan finds stored content that no ledger entry refers to.
//
// Such content is left behind by publishes that failed or timed out
// after their content was stored.
// Nothing here deletes anything;
// an orphan may still be anchored later with publish.Coordinator.Anchor.
package orphan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/posts"
)

// Orphan is stored content with no ledger entry.
type Orphan struct {
	ID posts.ContentID `json:"contentRef"`

	// These are from the decoded record.
	// Decodable is false if the blob is not a content record.
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	Decodable bool      `json:"decodable"`
}

// Options tune Find.
type Options struct {
	// Grace excludes records created within this long before Now,
	// which may belong to publishes still in progress.
	Grace time.Duration

	// Now is the reference time for Grace.
	// Nil means time.Now.
	Now func() time.Time

	// MaxInFlight bounds concurrent blob lookups.
	// Zero means 8.
	MaxInFlight int
}

// Find reports the blobs in s whose IDs are not in k,
// in ID order.
// Callers usually fill k with AddAnchored.
func Find(ctx context.Context, s posts.Lister, k Keep, opts Options) ([]Orphan, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 8
	}
	cutoff := opts.Now().Add(-opts.Grace)

	var (
		mu     sync.Mutex
		result []Orphan
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxInFlight)

	err := s.ListIDs(gctx, "", func(id posts.ContentID) error {
		found, err := k.Contains(gctx, id)
		if err != nil {
			return errors.Wrapf(err, "checking %s", id)
		}
		if found {
			return nil
		}
		g.Go(func() error {
			o, err := describe(gctx, s, id)
			if err != nil {
				return err
			}
			if o.Decodable && opts.Grace > 0 && o.CreatedAt.After(cutoff) {
				return nil
			}
			mu.Lock()
			result = append(result, o)
			mu.Unlock()
			return nil
		})
		return nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func describe(ctx context.Context, s posts.ContentStore, id posts.ContentID) (Orphan, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return Orphan{}, errors.Wrapf(err, "getting %s", id)
	}
	o := Orphan{ID: id}
	if rec, err := posts.DecodeRecord(b); err == nil {
		o.Title = rec.Title
		o.CreatedAt = rec.CreatedAt
		o.Decodable = true
	}
	return o, nil
}

// FindUnanchored reports the blobs in s that l does not refer to.
func FindUnanchored(ctx context.Context, s posts.Lister, l posts.LedgerReader, opts Options) ([]Orphan, error) {
	k := NewMemKeep()
	if err := AddAnchored(ctx, k, l); err != nil {
		return nil, err
	}
	return Find(ctx, s, k, opts)
}
