// Package mem implements an in-process ledger.
//
// It keeps the contract of a real ledger:
// submissions are not applied until they are confirmed,
// which happens after a configurable delay
// or, in manual mode, when the owner calls Confirm or Reject.
// Upvotes add one to a post's rating and downvotes subtract one.
package mem

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/ledger"
)

var _ posts.Ledger = &Ledger{}

// DefaultCreator is the creator address recorded on posts.
const DefaultCreator = "0x0000000000000000000000000000000000000001"

// Ledger is a memory-based ledger.
type Ledger struct {
	creator string
	delay   time.Duration
	manual  bool
	now     func() time.Time

	mu          sync.Mutex
	entries     []posts.LedgerEntry // entries[i].PostID == i+1
	intents     map[string]*intent
	seq         int
	unreachable bool
}

type intent struct {
	seq     int
	receipt posts.Receipt
	status  posts.Status
	ref     posts.ContentID
	dir     posts.Direction
	postID  uint64
	reason  string
	done    chan struct{}
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDelay makes intents confirm d after submission.
func WithDelay(d time.Duration) Option {
	return func(l *Ledger) { l.delay = d }
}

// WithManualFinality leaves intents pending until Confirm or Reject is called.
func WithManualFinality() Option {
	return func(l *Ledger) { l.manual = true }
}

// WithCreator sets the creator address recorded on new posts.
func WithCreator(addr string) Option {
	return func(l *Ledger) { l.creator = addr }
}

// WithClock sets the source of post creation times.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New produces a new, empty Ledger.
// By default intents are confirmed immediately.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		creator: DefaultCreator,
		now:     time.Now,
		intents: make(map[string]*intent),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetUnreachable makes every call fail with ErrLedgerUnreachable until it is reset.
func (l *Ledger) SetUnreachable(unreachable bool) {
	l.mu.Lock()
	l.unreachable = unreachable
	l.mu.Unlock()
}

// Caller must obtain a lock.
func (l *Ledger) checkReachable() error {
	if l.unreachable {
		return posts.Mark(errors.New("mem ledger: simulated outage"), posts.ErrLedgerUnreachable)
	}
	return nil
}

// CreatePost implements posts.Ledger.
func (l *Ledger) CreatePost(ctx context.Context, ref posts.ContentID) (posts.Receipt, error) {
	if _, err := posts.ParseContentID(string(ref)); err != nil {
		return posts.Receipt{}, posts.Mark(errors.Wrap(err, "malformed content reference"), posts.ErrLedgerRejected)
	}
	return l.submit(posts.IntentCreate, func(in *intent) error {
		in.ref = ref
		in.receipt.ContentRef = ref
		return nil
	})
}

// Vote implements posts.Ledger.
func (l *Ledger) Vote(ctx context.Context, postID uint64, dir posts.Direction) (posts.Receipt, error) {
	return l.submit(posts.IntentVote, func(in *intent) error {
		if postID == 0 || postID > uint64(len(l.entries)) {
			return errors.Wrapf(posts.ErrPostNotFound, "post %d", postID)
		}
		in.postID = postID
		in.receipt.PostID = postID
		in.dir = dir
		return nil
	})
}

func (l *Ledger) submit(kind posts.Intent, fill func(*intent) error) (posts.Receipt, error) {
	l.mu.Lock()
	if err := l.checkReachable(); err != nil {
		l.mu.Unlock()
		return posts.Receipt{}, err
	}
	l.seq++
	in := &intent{
		receipt: posts.Receipt{
			ID:          "mem-" + strconv.Itoa(l.seq),
			Intent:      kind,
			SubmittedAt: l.now(),
		},
		seq:    l.seq,
		status: posts.StatusSubmitted,
		done:   make(chan struct{}),
	}
	if err := fill(in); err != nil {
		l.mu.Unlock()
		return posts.Receipt{}, err
	}
	in.status = posts.StatusPending
	l.intents[in.receipt.ID] = in
	l.mu.Unlock()

	switch {
	case l.manual:
	case l.delay > 0:
		time.AfterFunc(l.delay, func() { l.Confirm(in.receipt.ID) })
	default:
		if err := l.Confirm(in.receipt.ID); err != nil {
			return posts.Receipt{}, err
		}
	}

	return in.receipt, nil
}

// Confirm applies a pending intent.
func (l *Ledger) Confirm(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	in, ok := l.intents[id]
	if !ok {
		return fmt.Errorf("unknown intent %s", id)
	}
	if in.status != posts.StatusPending {
		return fmt.Errorf("intent %s is %s", id, in.status)
	}

	switch in.receipt.Intent {
	case posts.IntentCreate:
		in.postID = uint64(len(l.entries) + 1)
		l.entries = append(l.entries, posts.LedgerEntry{
			PostID:     in.postID,
			Creator:    l.creator,
			ContentRef: in.ref,
			CreatedAt:  l.now().UTC().Truncate(time.Second),
		})

	case posts.IntentVote:
		e := &l.entries[in.postID-1]
		if in.dir == posts.Up {
			e.Rating++
		} else {
			e.Rating--
		}
	}

	in.status = posts.StatusConfirmed
	close(in.done)
	return nil
}

// Reject conclusively rejects a pending intent.
func (l *Ledger) Reject(id, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	in, ok := l.intents[id]
	if !ok {
		return fmt.Errorf("unknown intent %s", id)
	}
	if in.status != posts.StatusPending {
		return fmt.Errorf("intent %s is %s", id, in.status)
	}
	in.status = posts.StatusRejected
	in.reason = reason
	close(in.done)
	return nil
}

// Pending lists the receipts of intents that are not yet final, oldest first.
func (l *Ledger) Pending() []posts.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	var pending []*intent
	for _, in := range l.intents {
		if in.status == posts.StatusPending {
			pending = append(pending, in)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	result := make([]posts.Receipt, 0, len(pending))
	for _, in := range pending {
		result = append(result, in.receipt)
	}
	return result
}

// Status implements posts.Ledger.
func (l *Ledger) Status(_ context.Context, r posts.Receipt) (posts.Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkReachable(); err != nil {
		return "", err
	}
	in, ok := l.intents[r.ID]
	if !ok {
		return "", posts.Mark(fmt.Errorf("unknown intent %s", r.ID), posts.ErrLedgerRejected)
	}
	return in.status, nil
}

// AwaitFinality implements posts.Ledger.
func (l *Ledger) AwaitFinality(ctx context.Context, r posts.Receipt, timeout time.Duration) (posts.Finality, error) {
	l.mu.Lock()
	in, ok := l.intents[r.ID]
	l.mu.Unlock()
	if !ok {
		return posts.Finality{Status: posts.StatusRejected}, posts.Mark(fmt.Errorf("unknown intent %s", r.ID), posts.ErrLedgerRejected)
	}

	ctx, cancel := posts.FinalityContext(ctx, timeout)
	defer cancel()

	select {
	case <-ctx.Done():
		return posts.Finality{Status: posts.StatusTimedOut}, posts.Mark(errors.Wrapf(ctx.Err(), "awaiting %s", r.ID), posts.ErrTimeout)

	case <-in.done:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if in.status == posts.StatusRejected {
		return posts.Finality{Status: posts.StatusRejected}, posts.Mark(fmt.Errorf("intent %s rejected: %s", r.ID, in.reason), posts.ErrLedgerRejected)
	}
	return posts.Finality{Status: posts.StatusConfirmed, PostID: in.postID}, nil
}

// ListPosts implements posts.Ledger.
func (l *Ledger) ListPosts(context.Context) ([]posts.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkReachable(); err != nil {
		return nil, err
	}
	return append([]posts.LedgerEntry(nil), l.entries...), nil
}

// GetPost implements posts.Ledger.
func (l *Ledger) GetPost(_ context.Context, postID uint64) (posts.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkReachable(); err != nil {
		return posts.LedgerEntry{}, err
	}
	if postID == 0 || postID > uint64(len(l.entries)) {
		return posts.LedgerEntry{}, errors.Wrapf(posts.ErrPostNotFound, "post %d", postID)
	}
	return l.entries[postID-1], nil
}

// Ping implements posts.Pinger.
func (l *Ledger) Ping(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkReachable()
}

func init() {
	ledger.Register("mem", func(_ context.Context, conf map[string]interface{}) (posts.Ledger, error) {
		var opts []Option
		if s, ok := conf["delay"].(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing delay %q", s)
			}
			opts = append(opts, WithDelay(d))
		}
		if s, ok := conf["creator"].(string); ok {
			opts = append(opts, WithCreator(s))
		}
		return New(opts...), nil
	})
}
