// Package publish writes posts: content first, then the ledger anchor.
//
// A post is anchored only after its content has been stored,
// so every anchored reference resolves.
// Each call writes content at most once and submits at most one ledger intent.
package publish

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

// Stage is where a publish failed.
type Stage string

const (
	// StageValidation means the record was refused before any I/O.
	StageValidation Stage = "validation"

	// StageContent means the content store failed; the ledger was not touched.
	StageContent Stage = "content"

	// StageLedger means the content is stored but not anchored.
	// Error.ContentRef may be passed to Anchor to retry without re-uploading.
	StageLedger Stage = "ledger"

	// StageIndeterminate means the anchor intent was submitted
	// but its outcome is unknown.
	// Check the ledger before retrying.
	StageIndeterminate Stage = "indeterminate"
)

// Error is a failed publish.
type Error struct {
	Stage      Stage
	ContentRef posts.ContentID // set from StageLedger on
	Receipt    *posts.Receipt  // set when an intent was submitted
	Err        error
}

func (e *Error) Error() string {
	if e.ContentRef != "" {
		return fmt.Sprintf("publish failed at %s stage (content %s): %s", e.Stage, e.ContentRef, e.Err)
	}
	return fmt.Sprintf("publish failed at %s stage: %s", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is a successful publish.
type Result struct {
	PostID     uint64          `json:"postId"`
	ContentRef posts.ContentID `json:"contentRef"`
	Receipt    posts.Receipt   `json:"receipt"`
}

// Config configures a Coordinator.
type Config struct {
	// FinalityTimeout bounds the wait for the ledger.
	// Zero means DefaultFinalityTimeout.
	FinalityTimeout time.Duration

	// Now is the source of record timestamps.
	// Nil means time.Now.
	Now func() time.Time
}

// Coordinator publishes posts.
type Coordinator struct {
	content posts.ContentStore
	ledger  posts.Ledger
	conf    Config
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// New produces a Coordinator.
// Ledger may be nil, in which case content is stored
// and anchoring fails with ErrNotConfigured.
// Log and m may be nil.
func New(content posts.ContentStore, ledger posts.Ledger, conf Config, log *logrus.Entry, m *metrics.Metrics) *Coordinator {
	if conf.FinalityTimeout <= 0 {
		conf.FinalityTimeout = DefaultFinalityTimeout
	}
	if conf.Now == nil {
		conf.Now = time.Now
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Coordinator{
		content: content,
		ledger:  ledger,
		conf:    conf,
		log:     log.WithField("component", "publish"),
		metrics: m,
	}
}

// Publish stores rec and anchors it on the ledger,
// waiting for the anchor to become final.
// Failures are of type *Error.
func (c *Coordinator) Publish(ctx context.Context, rec posts.ContentRecord) (Result, error) {
	ref, err := c.store(ctx, rec)
	if err != nil {
		return Result{}, c.fail(err)
	}
	res, err := c.anchor(ctx, ref)
	if err != nil {
		return Result{}, c.fail(err)
	}
	c.metrics.Publish("ok")
	return res, nil
}

// StoreContent validates and stores rec without anchoring it.
// Failures are of type *Error.
func (c *Coordinator) StoreContent(ctx context.Context, rec posts.ContentRecord) (posts.ContentID, error) {
	ref, err := c.store(ctx, rec)
	if err != nil {
		return "", c.fail(err)
	}
	return ref, nil
}

// Anchor anchors content that is already stored,
// such as the ContentRef of an Error at StageLedger.
// It checks that the content exists before submitting.
// Failures are of type *Error.
func (c *Coordinator) Anchor(ctx context.Context, ref posts.ContentID) (Result, error) {
	ref, err := posts.ParseContentID(string(ref))
	if err != nil {
		return Result{}, c.fail(&Error{Stage: StageValidation, Err: err})
	}
	if _, err := c.content.Get(ctx, ref); err != nil {
		return Result{}, c.fail(&Error{Stage: StageContent, Err: errors.Wrapf(err, "checking %s", ref)})
	}
	res, err := c.anchor(ctx, ref)
	if err != nil {
		return Result{}, c.fail(err)
	}
	c.metrics.Publish("ok")
	return res, nil
}

func (c *Coordinator) store(ctx context.Context, rec posts.ContentRecord) (posts.ContentID, error) {
	if err := rec.Validate(); err != nil {
		return "", &Error{Stage: StageValidation, Err: err}
	}
	b, err := rec.Normalize(c.conf.Now()).Encode()
	if err != nil {
		return "", &Error{Stage: StageValidation, Err: posts.Mark(err, posts.ErrInvalid)}
	}
	ref, added, err := c.content.Put(ctx, b)
	if err != nil {
		return "", &Error{Stage: StageContent, Err: errors.Wrap(err, "storing content")}
	}
	c.log.WithFields(logrus.Fields{"content_ref": ref, "added": added, "bytes": len(b)}).Debug("stored content")
	return ref, nil
}

func (c *Coordinator) anchor(ctx context.Context, ref posts.ContentID) (Result, error) {
	if c.ledger == nil {
		return Result{}, &Error{Stage: StageLedger, ContentRef: ref, Err: posts.ErrNotConfigured}
	}

	receipt, err := c.ledger.CreatePost(ctx, ref)
	if err != nil {
		return Result{}, &Error{Stage: StageLedger, ContentRef: ref, Err: errors.Wrap(err, "submitting anchor")}
	}

	log := c.log.WithFields(logrus.Fields{"content_ref": ref, "receipt": receipt.ID})
	log.Debug("submitted anchor")

	fin, err := c.ledger.AwaitFinality(ctx, receipt, c.conf.FinalityTimeout)
	switch {
	case fin.Status == posts.StatusConfirmed:
		if err != nil {
			log.WithError(err).Warn("anchor confirmed but post id unknown")
		}
		log.WithField("post_id", fin.PostID).Info("published post")
		return Result{PostID: fin.PostID, ContentRef: ref, Receipt: receipt}, nil

	case errors.Is(err, posts.ErrLedgerRejected):
		return Result{}, &Error{Stage: StageLedger, ContentRef: ref, Receipt: &receipt, Err: err}

	case err == nil:
		err = fmt.Errorf("intent %s ended %s", receipt.ID, fin.Status)
	}
	return Result{}, &Error{Stage: StageIndeterminate, ContentRef: ref, Receipt: &receipt, Err: posts.Mark(err, posts.ErrTimeout)}
}

func (c *Coordinator) fail(err error) error {
	var e *Error
	if errors.As(err, &e) {
		c.metrics.Publish(string(e.Stage))
		c.log.WithFields(logrus.Fields{
			"stage":       e.Stage,
			"content_ref": e.ContentRef,
			"kind":        posts.KindOf(e.Err),
		}).WithError(e.Err).Warn("publish failed")
	}
	return err
}
