package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	merged, err := c.aggregator().ListMergedPosts(ctx)
	if err != nil {
		return errors.Wrap(err, "listing posts")
	}
	return printJSON(merged)
}

func (c maincmd) post(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	postID, err := postIDArg(fs, "post POSTID")
	if err != nil {
		return err
	}
	m, err := c.aggregator().GetMergedPost(ctx, postID)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: get CONTENTREF")
	}
	ref, err := posts.ParseContentID(fs.Arg(0))
	if err != nil {
		return err
	}
	rec, err := c.aggregator().GetContent(ctx, ref)
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func (c maincmd) listContent(ctx context.Context, fs *flag.FlagSet, args []string) error {
	start := fs.String("start", "", "start after this ref")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	l, err := content.AsLister(c.content)
	if err != nil {
		return err
	}
	return l.ListIDs(ctx, posts.ContentID(*start), func(id posts.ContentID) error {
		fmt.Println(id)
		return nil
	})
}

func postIDArg(fs *flag.FlagSet, usage string) (uint64, error) {
	if fs.NArg() < 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	postID, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	return postID, errors.Wrapf(err, "parsing post id %s", fs.Arg(0))
}
