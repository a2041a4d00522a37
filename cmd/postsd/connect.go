package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/posts"
	"github.com/bobg/posts/ledger"
)

// connectLedger creates a ledger,
// retrying with exponential backoff for up to timeout
// while the ledger is unreachable.
// Other errors end the attempts at once.
func connectLedger(ctx context.Context, typ string, conf map[string]interface{}, timeout time.Duration, log *logrus.Entry) (posts.Ledger, error) {
	var l posts.Ledger
	op := func() error {
		var err error
		l, err = ledger.Create(ctx, typ, conf)
		if errors.Is(err, posts.ErrLedgerUnreachable) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if timeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 250 * time.Millisecond
		eb.MaxElapsedTime = timeout
		b = eb
	}
	notify := func(err error, d time.Duration) {
		log.WithError(err).WithField("retry_in", d).Warn("ledger unreachable")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	return l, err
}
