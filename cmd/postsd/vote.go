package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

func (c maincmd) vote(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 2 {
		return errors.New("usage: vote POSTID up|down")
	}
	postID, err := postIDArg(fs, "vote POSTID up|down")
	if err != nil {
		return err
	}
	dir, err := posts.ParseDirection(fs.Arg(1))
	if err != nil {
		return err
	}
	res, err := c.voter().CastVote(ctx, postID, dir)
	if err != nil {
		return errors.Wrap(err, "voting")
	}
	return printJSON(res)
}

func (c maincmd) status(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 2 {
		return errors.New("usage: status create|vote RECEIPTID")
	}
	intent := posts.Intent(fs.Arg(0))
	if intent != posts.IntentCreate && intent != posts.IntentVote {
		return errors.New("intent must be create or vote")
	}
	st, err := c.voter().Status(ctx, posts.Receipt{ID: fs.Arg(1), Intent: intent})
	if err != nil {
		return errors.Wrap(err, "checking status")
	}
	return printJSON(map[string]interface{}{
		"id":     fs.Arg(1),
		"intent": intent,
		"status": st,
		"final":  st.Terminal(),
	})
}
