package posts

import (
	"github.com/pkg/errors"
)

// Failure sentinels.
// Implementations wrap their underlying errors with Mark
// so that errors.Is matches one of these
// while the message still says what went wrong.
var (
	// ErrNotFound is the error returned
	// when a content store has no blob with the requested ID.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable means a content store could not be reached.
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrUndecodable means a content store returned a blob
	// that is not a content record.
	ErrUndecodable = errors.New("undecodable content")

	// ErrStoreWriteFailed means a content store was reached but refused a write.
	ErrStoreWriteFailed = errors.New("content store write failed")

	// ErrLedgerUnreachable means the ledger could not be reached.
	ErrLedgerUnreachable = errors.New("ledger unreachable")

	// ErrLedgerRejected means the ledger refused an intent,
	// or the intent was conclusively rejected after submission.
	ErrLedgerRejected = errors.New("ledger rejected intent")

	// ErrPostNotFound means the ledger has no post with the requested ID.
	ErrPostNotFound = errors.New("post not found")

	// ErrTimeout means a deadline passed while waiting for an intent to become final.
	// The outcome of the intent is unknown.
	ErrTimeout = errors.New("timed out awaiting finality")

	// ErrNotConfigured means no ledger is configured.
	ErrNotConfigured = errors.New("ledger not configured")

	// ErrInvalid means a request was malformed and no I/O was attempted.
	ErrInvalid = errors.New("invalid request")
)

type markedErr struct {
	err  error
	kind error
}

// Mark wraps err so that errors.Is(result, kind) is true.
// The result's message is err's message.
// Mark(nil, kind) is nil.
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return &markedErr{err: err, kind: kind}
}

func (e *markedErr) Error() string        { return e.err.Error() }
func (e *markedErr) Unwrap() error        { return e.err }
func (e *markedErr) Is(target error) bool { return target == e.kind }

// Kind is a category of failure,
// telling a caller whether and how an operation may be retried.
type Kind int

const (
	// KindUnknown is anything not otherwise classified.
	KindUnknown Kind = iota

	// KindTransport failures may be retried with backoff.
	KindTransport

	// KindNotFound failures are terminal for the lookup.
	KindNotFound

	// KindRejected intents must not be retried as-is.
	KindRejected

	// KindIndeterminate intents have an unknown outcome.
	// Check the ledger before retrying.
	KindIndeterminate

	// KindValidation requests were refused before any I/O.
	KindValidation
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindTransport:     "transport",
	KindNotFound:      "not_found",
	KindRejected:      "rejected",
	KindIndeterminate: "indeterminate",
	KindValidation:    "validation",
}

func (k Kind) String() string {
	return kindNames[k]
}

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalid):
		return KindValidation
	case errors.Is(err, ErrTimeout):
		return KindIndeterminate
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPostNotFound):
		return KindNotFound
	case errors.Is(err, ErrLedgerRejected), errors.Is(err, ErrStoreWriteFailed):
		return KindRejected
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrLedgerUnreachable), errors.Is(err, ErrNotConfigured):
		return KindTransport
	}
	return KindUnknown
}
