package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

// syncContent copies blobs between the configured store
// and the stores described by the named config files
// until they all hold the same blobs.
func (c maincmd) syncContent(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("usage: sync STORECONFIG...")
	}

	l, err := content.AsLister(c.content)
	if err != nil {
		return err
	}
	stores := []posts.Lister{l}
	for _, arg := range fs.Args() {
		s, err := storeFromConfig(ctx, arg)
		if err != nil {
			return errors.Wrapf(err, "reading %s", arg)
		}
		l, err := content.AsLister(s)
		if err != nil {
			return errors.Wrap(err, arg)
		}
		stores = append(stores, l)
	}

	n, err := content.Sync(ctx, stores)
	if err != nil {
		return errors.Wrap(err, "syncing")
	}
	c.log.WithField("copied", n).Info("sync done")
	return nil
}

func storeFromConfig(ctx context.Context, filename string) (posts.ContentStore, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", filename)
	}
	var conf map[string]interface{}
	if err := json.Unmarshal(b, &conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, fmt.Errorf("config file %s missing `type` parameter", filename)
	}
	return content.Create(ctx, typ, conf)
}
