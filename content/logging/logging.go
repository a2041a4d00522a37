// Package logging implements a content store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

type Store struct {
	s   posts.ContentStore
	log *logrus.Entry
}

// New wraps s.
// A nil log discards everything.
func New(s posts.ContentStore, log *logrus.Entry) *Store {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Store{s: s, log: log.WithField("component", "content")}
}

func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	start := time.Now()
	b, err := s.s.Get(ctx, id)
	fields := logrus.Fields{"id": id, "elapsed": time.Since(start)}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Warn("Get")
	} else {
		s.log.WithFields(fields).WithField("bytes", len(b)).Debug("Get")
	}
	return b, err
}

func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	start := time.Now()
	id, added, err := s.s.Put(ctx, b)
	fields := logrus.Fields{"bytes": len(b), "elapsed": time.Since(start)}
	if err != nil {
		s.log.WithFields(fields).WithError(err).Error("Put")
	} else {
		s.log.WithFields(fields).WithFields(logrus.Fields{"id": id, "added": added}).Info("Put")
	}
	return id, added, err
}

// ListIDs passes through to the nested store,
// which must be a posts.Lister.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	l, err := content.AsLister(s.s)
	if err != nil {
		s.log.WithError(err).Error("ListIDs")
		return err
	}
	s.log.WithField("start", start).Debug("ListIDs")
	return l.ListIDs(ctx, start, func(id posts.ContentID) error {
		err := f(id)
		if err != nil {
			s.log.WithField("id", id).WithError(err).Warn("ListIDs callback")
		}
		return err
	})
}

// Ping delegates to the nested store, if it can ping.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.s.(posts.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func init() {
	content.Register("logging", func(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		nested, err := content.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		log, _ := conf["logger"].(*logrus.Entry)
		return New(nested, log), nil
	})
}
