package main

import (
	"context"
	"flag"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
	"github.com/bobg/posts/orphan"
)

func (c maincmd) info(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	out := map[string]interface{}{
		"contentTypes":  content.Types(),
		"ledgerEnabled": c.ledger != nil,
	}
	if c.ledgerInfo != nil {
		out["address"] = c.ledgerInfo.Address
	}
	return printJSON(out)
}

func (c maincmd) orphans(ctx context.Context, fs *flag.FlagSet, args []string) error {
	grace := fs.Duration("grace", 10*time.Minute, "ignore content newer than this")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if c.ledger == nil {
		return posts.ErrNotConfigured
	}
	l, err := content.AsLister(c.content)
	if err != nil {
		return err
	}
	found, err := orphan.FindUnanchored(ctx, l, c.ledger, orphan.Options{
		Grace:       *grace,
		MaxInFlight: c.conf.MaxInFlight,
	})
	if err != nil {
		return errors.Wrap(err, "finding orphans")
	}
	if found == nil {
		found = []orphan.Orphan{}
	}
	return printJSON(found)
}
