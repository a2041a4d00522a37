package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

func recordFlags(fs *flag.FlagSet) (title, author, body *string) {
	title = fs.String("title", "", "post title")
	author = fs.String("author", "", "post author (default Anonymous)")
	body = fs.String("content", "", "post body (default: read stdin)")
	return
}

func readRecord(title, author, body string) (posts.ContentRecord, error) {
	if body == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return posts.ContentRecord{}, errors.Wrap(err, "reading stdin")
		}
		body = string(b)
	}
	return posts.ContentRecord{Title: title, Content: body, Author: author}, nil
}

func (c maincmd) publish(ctx context.Context, fs *flag.FlagSet, args []string) error {
	title, author, body := recordFlags(fs)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	rec, err := readRecord(*title, *author, *body)
	if err != nil {
		return err
	}
	res, err := c.publisher().Publish(ctx, rec)
	if err != nil {
		return errors.Wrap(err, "publishing")
	}
	return printJSON(res)
}

func (c maincmd) store(ctx context.Context, fs *flag.FlagSet, args []string) error {
	title, author, body := recordFlags(fs)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	rec, err := readRecord(*title, *author, *body)
	if err != nil {
		return err
	}
	ref, err := c.publisher().StoreContent(ctx, rec)
	if err != nil {
		return errors.Wrap(err, "storing")
	}
	return printJSON(map[string]interface{}{"contentRef": ref})
}

func (c maincmd) anchor(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: anchor CONTENTREF")
	}
	res, err := c.publisher().Anchor(ctx, posts.ContentID(fs.Arg(0)))
	if err != nil {
		return errors.Wrap(err, "anchoring")
	}
	return printJSON(res)
}
