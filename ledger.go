package posts

import (
	"fmt"
	"time"
)

// LedgerEntry is a post as recorded on the ledger.
// Everything but Rating is fixed when the post is anchored.
type LedgerEntry struct {
	PostID     uint64    `json:"postId"`
	Creator    string    `json:"creator"`
	ContentRef ContentID `json:"contentRef"`
	Rating     int64     `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Direction is the direction of a vote.
type Direction bool

const (
	Up   Direction = true
	Down Direction = false
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection parses "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up", "upvote":
		return Up, nil
	case "down", "downvote":
		return Down, nil
	}
	return Down, Mark(fmt.Errorf("unknown vote direction %q", s), ErrInvalid)
}

// Intent is the kind of a ledger submission.
type Intent string

const (
	IntentCreate Intent = "create"
	IntentVote   Intent = "vote"
)

// Receipt identifies a submitted ledger intent.
type Receipt struct {
	ID     string `json:"id"`
	Intent Intent `json:"intent"`

	// PostID is the post the intent is about.
	// For a create intent it is zero
	// unless the ledger assigned an ID at submission time;
	// the final ID is in Finality.PostID.
	PostID uint64 `json:"postId,omitempty"`

	// ContentRef is the content a create intent anchors.
	ContentRef ContentID `json:"contentRef,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
}

// Status is the state of a submitted intent.
// Every intent moves from StatusSubmitted to StatusPending,
// and from there to one of the three terminal states.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusTimedOut  Status = "timed_out"
)

// Terminal tells whether s is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusRejected, StatusTimedOut:
		return true
	}
	return false
}

// Finality is the outcome of waiting for an intent.
type Finality struct {
	Status Status `json:"status"`

	// PostID is the ID of the post created or voted on.
	// It is set only when Status is StatusConfirmed.
	PostID uint64 `json:"postId,omitempty"`
}
