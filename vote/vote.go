// Package vote casts votes on anchored posts.
// Ratings are whatever the ledger says they are;
// nothing here adjusts one.
package vote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/posts"
	"github.com/bobg/posts/metrics"
)

// DefaultFinalityTimeout is posts.DefaultFinalityTimeout.
const DefaultFinalityTimeout = posts.DefaultFinalityTimeout

// Reason is why a vote failed.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonRejected      Reason = "rejected"
	ReasonUnreachable   Reason = "unreachable"
	ReasonIndeterminate Reason = "indeterminate"
	ReasonNotConfigured Reason = "not_configured"
)

// Error is a failed vote.
type Error struct {
	Reason  Reason
	PostID  uint64
	Receipt *posts.Receipt // set when an intent was submitted
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vote on post %d failed (%s): %s", e.PostID, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is a confirmed vote.
type Result struct {
	PostID  uint64        `json:"postId"`
	Receipt posts.Receipt `json:"receipt"`
}

// Coordinator casts votes.
type Coordinator struct {
	ledger  posts.Ledger
	timeout time.Duration
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New produces a Coordinator.
// A nil ledger makes every vote fail with ReasonNotConfigured.
// A zero timeout means DefaultFinalityTimeout.
// Log and m may be nil.
func New(ledger posts.Ledger, timeout time.Duration, log *logrus.Entry, m *metrics.Metrics) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultFinalityTimeout
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Coordinator{
		ledger:  ledger,
		timeout: timeout,
		log:     log.WithField("component", "vote"),
		metrics: m,
	}
}

// CastVote submits a vote and waits for it to become final.
// Failures are of type *Error.
func (c *Coordinator) CastVote(ctx context.Context, postID uint64, dir posts.Direction) (Result, error) {
	res, err := c.castVote(ctx, postID, dir)
	log := c.log.WithFields(logrus.Fields{"post_id": postID, "direction": dir})
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			c.metrics.Vote(string(e.Reason))
			log = log.WithField("reason", e.Reason)
		}
		log.WithError(err).Warn("vote failed")
		return Result{}, err
	}
	c.metrics.Vote("ok")
	log.Info("vote confirmed")
	return res, nil
}

func (c *Coordinator) castVote(ctx context.Context, postID uint64, dir posts.Direction) (Result, error) {
	if c.ledger == nil {
		return Result{}, &Error{Reason: ReasonNotConfigured, PostID: postID, Err: posts.ErrNotConfigured}
	}

	receipt, err := c.ledger.Vote(ctx, postID, dir)
	if err != nil {
		return Result{}, &Error{Reason: submitReason(err), PostID: postID, Err: errors.Wrap(err, "submitting vote")}
	}

	fin, err := c.ledger.AwaitFinality(ctx, receipt, c.timeout)
	switch {
	case err == nil && fin.Status == posts.StatusConfirmed:
		return Result{PostID: postID, Receipt: receipt}, nil

	case errors.Is(err, posts.ErrLedgerRejected):
		return Result{}, &Error{Reason: ReasonRejected, PostID: postID, Receipt: &receipt, Err: err}

	case err == nil:
		err = fmt.Errorf("intent %s ended %s", receipt.ID, fin.Status)
	}
	return Result{}, &Error{Reason: ReasonIndeterminate, PostID: postID, Receipt: &receipt, Err: posts.Mark(err, posts.ErrTimeout)}
}

func submitReason(err error) Reason {
	switch posts.KindOf(err) {
	case posts.KindNotFound:
		return ReasonNotFound
	case posts.KindRejected, posts.KindValidation:
		return ReasonRejected
	case posts.KindIndeterminate:
		return ReasonIndeterminate
	}
	return ReasonUnreachable
}

// Status reports the state of a submitted vote without waiting.
func (c *Coordinator) Status(ctx context.Context, r posts.Receipt) (posts.Status, error) {
	if c.ledger == nil {
		return "", posts.ErrNotConfigured
	}
	return c.ledger.Status(ctx, r)
}
