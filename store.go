package posts

import (
	"context"
	"time"
)

// ContentStore is a content-addressed blob store.
// A blob's ID is derived from its bytes,
// so putting the same bytes twice yields the same ID,
// and a Put that failed with ErrStoreUnavailable is safe to retry.
// IDs say nothing about the order in which blobs were stored.
type ContentStore interface {
	// Put adds b to the store if it was not already present.
	// It returns b's ID and a boolean that is true iff the blob had to be added.
	// Stores that cannot tell report true.
	Put(ctx context.Context, b []byte) (id ContentID, added bool, err error)

	// Get gets a blob by its ID.
	// It returns ErrNotFound if the store does not know the ID.
	Get(ctx context.Context, id ContentID) ([]byte, error)
}

// Lister is a ContentStore that can enumerate its blobs.
type Lister interface {
	ContentStore

	// ListIDs calls f for each blob ID in the store in lexicographic order,
	// beginning with the first ID _after_ start.
	// If f returns an error,
	// ListIDs exits with that error.
	ListIDs(ctx context.Context, start ContentID, f func(ContentID) error) error
}

// Pinger is implemented by stores and ledgers that can check their connection.
type Pinger interface {
	Ping(context.Context) error
}

// Ledger is an append-only record of posts kept by an external consensus system.
// Submissions (CreatePost, Vote) are not final when they return.
type Ledger interface {
	LedgerReader

	// CreatePost submits an intent to anchor a post referring to ref.
	CreatePost(ctx context.Context, ref ContentID) (Receipt, error)

	// Vote submits a vote on an existing post.
	// It returns ErrPostNotFound if there is no such post.
	Vote(ctx context.Context, postID uint64, dir Direction) (Receipt, error)

	// Status reports the current state of a submitted intent without blocking.
	Status(ctx context.Context, r Receipt) (Status, error)

	// AwaitFinality waits until r is confirmed or rejected,
	// or until timeout elapses or ctx is done.
	// A timeout of zero or less means DefaultFinalityTimeout.
	// A rejected intent produces ErrLedgerRejected
	// and an expired wait produces ErrTimeout,
	// each with a Finality carrying the corresponding Status.
	AwaitFinality(ctx context.Context, r Receipt, timeout time.Duration) (Finality, error)
}

// LedgerReader is the read-only half of a Ledger.
type LedgerReader interface {
	// ListPosts returns every post the ledger knows about,
	// in ascending order of post ID.
	// It does not wait for pending intents.
	ListPosts(ctx context.Context) ([]LedgerEntry, error)

	// GetPost returns one post,
	// or ErrPostNotFound.
	GetPost(ctx context.Context, postID uint64) (LedgerEntry, error)
}

// DefaultFinalityTimeout bounds AwaitFinality when the caller gives no timeout.
const DefaultFinalityTimeout = 60 * time.Second

// FinalityContext derives the context for one AwaitFinality call.
// The wait always has a deadline:
// a timeout of zero or less means DefaultFinalityTimeout.
func FinalityContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultFinalityTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
