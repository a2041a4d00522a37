// Command postsd serves and operates the posts service.
//
// Usage:
//
//	postsd [-config postsd.json] [-envdir DIR] SUBCOMMAND [ARGS]
//
// Run "postsd serve" for the HTTP API.
// The other subcommands perform one operation each and print JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobg/subcmd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/bobg/posts"
	"github.com/bobg/posts/aggregate"
	"github.com/bobg/posts/config"
	"github.com/bobg/posts/content"
	_ "github.com/bobg/posts/content/file"
	_ "github.com/bobg/posts/content/gcs"
	_ "github.com/bobg/posts/content/ipfs"
	_ "github.com/bobg/posts/content/logging"
	_ "github.com/bobg/posts/content/lru"
	_ "github.com/bobg/posts/content/mem"
	_ "github.com/bobg/posts/content/pg"
	_ "github.com/bobg/posts/content/replica"
	_ "github.com/bobg/posts/content/sqlite3"
	"github.com/bobg/posts/ledger"
	_ "github.com/bobg/posts/ledger/eth"
	_ "github.com/bobg/posts/ledger/mem"
	"github.com/bobg/posts/metrics"
	"github.com/bobg/posts/publish"
	"github.com/bobg/posts/vote"
)

type maincmd struct {
	conf       *config.Config
	log        *logrus.Entry
	content    posts.ContentStore
	ledger     posts.Ledger // nil in content-only mode
	ledgerInfo *ledger.Info // nil when no ledger program is deployed
	reg        *prometheus.Registry
	metrics    *metrics.Metrics
}

func main() {
	var (
		configPath = flag.String("config", config.DefaultFile, "path to config file")
		envDir     = flag.String("envdir", ".", "directory holding .env files")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envDir); err != nil {
		log.Fatalf("Loading .env files: %s", err)
	}
	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %s", err)
	}
	logger, err := newLogger(conf)
	if err != nil {
		log.Fatalf("Configuring logging: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newMaincmd(ctx, conf, logger)
	if err != nil {
		logger.WithError(err).Fatal("starting up")
	}

	if err := subcmd.Run(ctx, c, flag.Args()); err != nil {
		logger.WithError(err).Fatal("failed")
	}
}

func newLogger(conf *config.Config) (*logrus.Entry, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing log level %q", conf.LogLevel)
	}
	l.SetLevel(level)
	if conf.LogJSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return logrus.NewEntry(l).WithField("service", "postsd"), nil
}

func newMaincmd(ctx context.Context, conf *config.Config, logger *logrus.Entry) (maincmd, error) {
	c := maincmd{
		conf: conf,
		log:  logger,
		reg:  prometheus.NewRegistry(),
	}
	c.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.metrics = metrics.New(c.reg)

	s, err := newContentStore(ctx, conf, logger)
	if err != nil {
		return c, err
	}
	c.content = s

	if !conf.LedgerEnabled() {
		logger.Warn("no ledger configured, running content-only")
		return c, nil
	}

	typ, _ := conf.Ledger["type"].(string)
	l, err := connectLedger(ctx, typ, conf.Ledger, conf.ConnectTimeout.Duration, logger)
	if errors.Is(err, ledger.ErrNotDeployed) {
		logger.Warn("contract not deployed yet, running content-only")
		return c, nil
	}
	if err != nil {
		return c, errors.Wrapf(err, "creating %s-type ledger", typ)
	}
	c.ledger = l

	if typ == "eth" {
		infoPath, _ := conf.Ledger["info"].(string)
		if infoPath == "" {
			infoPath = ledger.DefaultInfoFile
		}
		info, err := ledger.LoadInfo(infoPath)
		if err != nil {
			return c, errors.Wrap(err, "loading contract info")
		}
		c.ledgerInfo = info
		logger.WithField("address", info.Address).Info("contract connected")
	}

	return c, nil
}

// newContentStore creates the configured store,
// wrapped in a cache if cache_size is set
// and in a logging decorator at debug level.
func newContentStore(ctx context.Context, conf *config.Config, logger *logrus.Entry) (posts.ContentStore, error) {
	storeConf := conf.Content
	if conf.CacheSize > 0 {
		storeConf = map[string]interface{}{
			"type":   "lru",
			"size":   float64(conf.CacheSize),
			"nested": storeConf,
		}
	}
	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		storeConf = map[string]interface{}{
			"type":   "logging",
			"logger": logger.WithField("component", "content"),
			"nested": storeConf,
		}
	}
	typ, _ := storeConf["type"].(string)
	s, err := content.Create(ctx, typ, storeConf)
	return s, errors.Wrapf(err, "creating %s-type content store", typ)
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"anchor":       c.anchor,
		"get":          c.get,
		"info":         c.info,
		"list":         c.list,
		"list-content": c.listContent,
		"orphans":      c.orphans,
		"post":         c.post,
		"publish":      c.publish,
		"serve":        c.serve,
		"status":       c.status,
		"store":        c.store,
		"sync":         c.syncContent,
		"vote":         c.vote,
	}
}

func (c maincmd) aggregator() *aggregate.Aggregator {
	var lr posts.LedgerReader
	if c.ledger != nil {
		lr = c.ledger
	}
	conf := aggregate.Config{
		MaxInFlight:  c.conf.MaxInFlight,
		FetchTimeout: c.conf.FetchTimeout.Duration,
	}
	return aggregate.New(c.content, lr, conf, c.log, c.metrics)
}

func (c maincmd) publisher() *publish.Coordinator {
	conf := publish.Config{FinalityTimeout: c.conf.FinalityTimeout.Duration}
	return publish.New(c.content, c.ledger, conf, c.log, c.metrics)
}

func (c maincmd) voter() *vote.Coordinator {
	return vote.New(c.ledger, c.conf.FinalityTimeout.Duration, c.log, c.metrics)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
