// Package aggregate joins ledger entries with their content.
//
// The ledger is authoritative for which posts exist.
// Content lookups run concurrently, bounded in number and in time,
// and a lookup that fails yields a placeholder instead of failing the listing.
package aggregate

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/posts"
	"github.com/bobg/posts/metrics"
)

// Defaults for Config.
const (
	DefaultMaxInFlight  = 8
	DefaultFetchTimeout = 5 * time.Second
)

// Config bounds the content lookups of an Aggregator.
// Zero values mean the defaults.
type Config struct {
	MaxInFlight  int
	FetchTimeout time.Duration
}

// Aggregator produces MergedPosts.
type Aggregator struct {
	content posts.ContentStore
	ledger  posts.LedgerReader
	conf    Config
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New produces an Aggregator.
// A nil ledger makes every call fail with ErrNotConfigured.
// Log and m may be nil.
func New(content posts.ContentStore, ledger posts.LedgerReader, conf Config, log *logrus.Entry, m *metrics.Metrics) *Aggregator {
	if conf.MaxInFlight <= 0 {
		conf.MaxInFlight = DefaultMaxInFlight
	}
	if conf.FetchTimeout <= 0 {
		conf.FetchTimeout = DefaultFetchTimeout
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Aggregator{
		content: content,
		ledger:  ledger,
		conf:    conf,
		log:     log.WithField("component", "aggregate"),
		metrics: m,
	}
}

// ListMergedPosts returns one MergedPost for every ledger entry,
// in ledger order.
// Entries whose content cannot be loaded get placeholder content.
// Only a ledger failure, or the end of ctx, fails the call.
func (a *Aggregator) ListMergedPosts(ctx context.Context) ([]posts.MergedPost, error) {
	if a.ledger == nil {
		return nil, posts.ErrNotConfigured
	}
	entries, err := a.ledger.ListPosts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing ledger posts")
	}
	a.metrics.LedgerEntries(len(entries))

	result := make([]posts.MergedPost, len(entries))

	var g errgroup.Group
	g.SetLimit(a.conf.MaxInFlight)
	for i, e := range entries {
		g.Go(func() error {
			rec, err := a.fetch(ctx, e.ContentRef)
			if err != nil {
				a.log.WithFields(logrus.Fields{
					"post_id":     e.PostID,
					"content_ref": e.ContentRef,
					"kind":        posts.KindOf(err),
				}).WithError(err).Warn("content unavailable, using placeholder")
				a.metrics.Placeholder()
				result[i] = posts.Placeholder(e)
				return nil
			}
			result[i] = posts.Merge(e, rec)
			return nil
		})
	}
	_ = g.Wait() // no goroutine returns an error

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetMergedPost returns one merged post.
// Unlike ListMergedPosts it reports a content failure as an error.
func (a *Aggregator) GetMergedPost(ctx context.Context, postID uint64) (posts.MergedPost, error) {
	if a.ledger == nil {
		return posts.MergedPost{}, posts.ErrNotConfigured
	}
	e, err := a.ledger.GetPost(ctx, postID)
	if err != nil {
		return posts.MergedPost{}, errors.Wrapf(err, "getting post %d", postID)
	}
	rec, err := a.fetch(ctx, e.ContentRef)
	if err != nil {
		return posts.Placeholder(e), errors.Wrapf(err, "loading content of post %d", postID)
	}
	return posts.Merge(e, rec), nil
}

// GetContent loads and decodes one content record.
func (a *Aggregator) GetContent(ctx context.Context, id posts.ContentID) (posts.ContentRecord, error) {
	return a.fetch(ctx, id)
}

func (a *Aggregator) fetch(ctx context.Context, id posts.ContentID) (posts.ContentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.conf.FetchTimeout)
	defer cancel()

	start := time.Now()
	b, err := a.content.Get(ctx, id)
	a.metrics.ContentFetch(time.Since(start), err)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, posts.ErrNotFound) {
			err = posts.Mark(err, posts.ErrStoreUnavailable)
		}
		return posts.ContentRecord{}, errors.Wrapf(err, "getting %s", id)
	}
	rec, err := posts.DecodeRecord(b)
	return rec, errors.Wrapf(err, "decoding %s", id)
}
