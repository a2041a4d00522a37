// Package server is the HTTP surface of the posts service.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bobg/posts"
	"github.com/bobg/posts/aggregate"
	"github.com/bobg/posts/ledger"
	"github.com/bobg/posts/metrics"
	"github.com/bobg/posts/publish"
	"github.com/bobg/posts/vote"
)

// RequestIDHeader carries the request ID in requests and responses.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// Options are the parts a Server is built from.
type Options struct {
	Content posts.ContentStore

	// Ledger and Info are nil when no ledger program is deployed.
	Ledger posts.Ledger
	Info   *ledger.Info

	Aggregator *aggregate.Aggregator
	Publisher  *publish.Coordinator
	Voter      *vote.Coordinator

	Log     *logrus.Entry
	Metrics *metrics.Metrics

	// Gatherer, if set, is served at /metrics.
	Gatherer prometheus.Gatherer

	// CORSOrigins restricts cross-origin requests to these origins.
	// Empty means any origin.
	CORSOrigins []string

	// PingTimeout bounds each connectivity check made by /health.
	// Zero means two seconds.
	PingTimeout time.Duration
}

// Server serves the posts API.
type Server struct {
	Options
	engine *gin.Engine
}

// New produces a Server with its routes installed.
func New(opts Options) *Server {
	if opts.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Log = logrus.NewEntry(l)
	}
	opts.Log = opts.Log.WithField("component", "server")
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}

	s := &Server{Options: opts, engine: gin.New()}

	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog(), s.corsHandler())

	s.engine.POST("/posts", s.createPost)
	s.engine.GET("/posts", s.listPosts)
	s.engine.GET("/posts/:contentRef", s.getContent)
	s.engine.GET("/ledger-info", s.ledgerInfo)
	s.engine.GET("/health", s.health)

	s.engine.POST("/content", s.storeContent)
	s.engine.POST("/anchors", s.anchor)
	s.engine.GET("/ledger/posts/:postID", s.getPost)
	s.engine.POST("/ledger/posts/:postID/votes", s.castVote)
	s.engine.GET("/receipts/:intent/:id", s.receiptStatus)

	if opts.Gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// Routes of the earlier Express backend, for existing front ends.
	api := s.engine.Group("/api")
	api.POST("/createPost", s.legacyCreatePost)
	api.GET("/posts", s.legacyListPosts)
	api.GET("/post/:contentRef", s.getContent)
	api.GET("/contract-info", s.ledgerInfo)
	api.GET("/health", s.legacyHealth)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.engine.ServeHTTP(w, req)
}

// Run serves on addr until ctx is done,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(ctx, lis)
}

// Serve is like Run with an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	s.Log.WithField("addr", lis.Addr().String()).Info("listening")

	select {
	case err := <-errCh:
		return errors.Wrap(err, "serving")

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutting down")
		}
		<-errCh
		return nil
	}
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.Metrics.HTTPRequest(route, strconv.Itoa(status), latency)

		entry := s.logFor(c).WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": latency,
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request refused")
		default:
			entry.Debug("request served")
		}
	}
}

func (s *Server) corsHandler() gin.HandlerFunc {
	if len(s.CORSOrigins) == 0 {
		return cors.Default()
	}
	conf := cors.DefaultConfig()
	conf.AllowOrigins = s.CORSOrigins
	conf.AddAllowHeaders(RequestIDHeader)
	conf.ExposeHeaders = []string{RequestIDHeader}
	return cors.New(conf)
}

func (s *Server) logFor(c *gin.Context) *logrus.Entry {
	return s.Log.WithField(requestIDKey, c.GetString(requestIDKey))
}
