package main

import (
	"context"
	"flag"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/posts/server"
)

func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	listen := fs.String("listen", c.conf.Listen, "listen address")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if !c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	s := server.New(server.Options{
		Content:     c.content,
		Ledger:      c.ledger,
		Info:        c.ledgerInfo,
		Aggregator:  c.aggregator(),
		Publisher:   c.publisher(),
		Voter:       c.voter(),
		Log:         c.log,
		Metrics:     c.metrics,
		Gatherer:    c.reg,
		CORSOrigins: c.conf.CORSOrigins,
	})
	return s.Run(ctx, *listen)
}
