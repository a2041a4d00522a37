// Package replica implements a content store that writes to several nested stores.
//
// Writes to the primary stores are synchronous:
// Put succeeds only when every primary has the blob.
// Writes to mirror stores are queued and happen in the background.
// A failed mirror write is logged and does not affect the caller,
// since the blob is already safe in the primaries.
//
// Primaries must share an addressing scheme,
// since Put requires them to agree on the ID.
// Mirrors may file blobs under IDs of their own.
package replica

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// DefaultQueueLen is the mirror queue length used by the "replica" factory.
const DefaultQueueLen = 10

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("replica store closed")

// Store is a content store that delegates to primary and mirror stores.
type Store struct {
	primaries []posts.ContentStore
	mirrors   []chan []byte
	log       *logrus.Entry
	wg        sync.WaitGroup
	done      <-chan struct{}

	mu     sync.RWMutex // protects closed and sends on mirrors
	closed bool
}

// New produces a new Store.
// The set of primaries must be non-empty.
// The set of mirrors may be empty.
// Each mirror gets a goroutine and a queue of length n,
// which must be 1 or greater.
// Put blocks while any mirror queue is full.
// Canceling ctx stops the mirror goroutines.
// A nil log discards everything.
func New(ctx context.Context, primaries, mirrors []posts.ContentStore, n int, log *logrus.Entry) *Store {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	s := &Store{
		primaries: primaries,
		log:       log.WithField("component", "replica"),
		done:      ctx.Done(),
	}
	for i, m := range mirrors {
		q := make(chan []byte, n)
		s.mirrors = append(s.mirrors, q)
		s.wg.Add(1)
		go s.runMirror(ctx, i, m, q)
	}
	return s
}

func (s *Store) runMirror(ctx context.Context, i int, m posts.ContentStore, q <-chan []byte) {
	defer s.wg.Done()

	log := s.log.WithField("mirror", i)
	for {
		select {
		case <-ctx.Done():
			return

		case b, ok := <-q:
			if !ok {
				return
			}
			id, _, err := m.Put(ctx, b)
			if err != nil {
				log.WithError(err).Warn("mirror write failed")
				continue
			}
			log.WithField("id", id).Debug("mirrored")
		}
	}
}

// Put implements posts.ContentStore.
// The blob is written to all primaries,
// which must agree on its ID.
// Some primaries may already have the blob and others may not,
// in which case added reports whether any of them added it.
// The blob is then queued for each mirror.
func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, ErrClosed
	}

	var (
		ids   = make([]posts.ContentID, len(s.primaries))
		added = make([]bool, len(s.primaries))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.primaries {
		g.Go(func() error {
			id, a, err := p.Put(gctx, b)
			if err != nil {
				return errors.Wrapf(err, "storing in primary %d", i)
			}
			ids[i], added[i] = id, a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", false, err
	}

	var anyAdded bool
	for i, id := range ids {
		if id != ids[0] {
			return "", false, posts.Mark(fmt.Errorf("primary %d stored blob as %s, primary 0 as %s", i, id, ids[0]), posts.ErrStoreWriteFailed)
		}
		anyAdded = anyAdded || added[i]
	}

	// The caller may reuse b once Put returns.
	queued := append([]byte(nil), b...)
	for _, q := range s.mirrors {
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-s.done:
			return "", false, ErrClosed
		case q <- queued:
		}
	}

	return ids[0], anyAdded, nil
}

// Get implements posts.ContentStore.
// It asks all primaries at once
// and returns the first successful answer,
// canceling the other requests.
// If every primary fails,
// the error is ErrNotFound if any primary reported ErrNotFound
// and otherwise the first error received.
func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		b   []byte
		err error
	}
	ch := make(chan result, len(s.primaries))
	for _, p := range s.primaries {
		go func() {
			b, err := p.Get(ctx, id)
			ch <- result{b: b, err: err}
		}()
	}

	var firstErr, notFound error
	for range s.primaries {
		r := <-ch
		if r.err == nil {
			return r.b, nil
		}
		if errors.Is(r.err, posts.ErrNotFound) && notFound == nil {
			notFound = r.err
		}
		if firstErr == nil {
			firstErr = r.err
		}
	}
	if notFound != nil {
		return nil, notFound
	}
	return nil, firstErr
}

// ListIDs implements posts.Lister.
// It merges the IDs of all the primaries,
// each of which must be a posts.Lister.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	listers := make([]posts.Lister, len(s.primaries))
	for i, p := range s.primaries {
		l, ok := p.(posts.Lister)
		if !ok {
			return fmt.Errorf("primary %d (%T) cannot list its content", i, p)
		}
		listers[i] = l
	}

	return content.MergeIDs(ctx, listers, start, func(id posts.ContentID, _ []bool) error {
		return f(id)
	})
}

// Ping checks every primary that can ping.
func (s *Store) Ping(ctx context.Context) error {
	for i, p := range s.primaries {
		if pinger, ok := p.(posts.Pinger); ok {
			if err := pinger.Ping(ctx); err != nil {
				return errors.Wrapf(err, "pinging primary %d", i)
			}
		}
	}
	return nil
}

// Close stops accepting writes,
// then waits for the mirrors to drain their queues.
func (s *Store) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, q := range s.mirrors {
			close(q)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func init() {
	content.Register("replica", func(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		primaries, err := nestedList(ctx, conf, "primaries")
		if err != nil {
			return nil, err
		}
		if len(primaries) == 0 {
			return nil, errors.New(`missing "primaries" parameter`)
		}
		mirrors, err := nestedList(ctx, conf, "mirrors")
		if err != nil {
			return nil, err
		}

		queueLen := DefaultQueueLen
		if n, ok := conf["queuelen"].(float64); ok && n >= 1 { // JSON numbers decode as float64
			queueLen = int(n)
		}
		log, _ := conf["logger"].(*logrus.Entry)

		return New(ctx, primaries, mirrors, queueLen, log), nil
	})
}

func nestedList(ctx context.Context, conf map[string]interface{}, key string) ([]posts.ContentStore, error) {
	items, _ := conf[key].([]interface{})
	var result []posts.ContentStore
	for i, item := range items {
		nested, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s item %d is not an object", key, i)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, fmt.Errorf("%s item %d missing \"type\"", key, i)
		}
		s, err := content.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s item %d", key, i)
		}
		result = append(result, s)
	}
	return result, nil
}
