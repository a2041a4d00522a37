package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/bobg/posts"
	"github.com/bobg/posts/ledger"
	lmem "github.com/bobg/posts/ledger/mem"
)

var (
	dialMu    sync.Mutex
	dialFails int
	dials     int
)

func init() {
	ledger.Register("test-dial", func(context.Context, map[string]interface{}) (posts.Ledger, error) {
		dialMu.Lock()
		defer dialMu.Unlock()
		dials++
		if dials <= dialFails {
			return nil, posts.Mark(errors.New("connection refused"), posts.ErrLedgerUnreachable)
		}
		return lmem.New(), nil
	})
	ledger.Register("test-broken", func(context.Context, map[string]interface{}) (posts.Ledger, error) {
		dialMu.Lock()
		defer dialMu.Unlock()
		dials++
		return nil, errors.New("bad abi")
	})
}

func resetDials(fails int) {
	dialMu.Lock()
	dialFails, dials = fails, 0
	dialMu.Unlock()
}

func dialCount() int {
	dialMu.Lock()
	defer dialMu.Unlock()
	return dials
}

func TestConnectLedgerRetries(t *testing.T) {
	resetDials(2)
	logger, hook := logtest.NewNullLogger()

	l, err := connectLedger(context.Background(), "test-dial", nil, 10*time.Second, logrus.NewEntry(logger))
	if err != nil {
		t.Fatal(err)
	}
	if l == nil {
		t.Fatal("no ledger")
	}
	if n := dialCount(); n != 3 {
		t.Errorf("got %d dials, want 3", n)
	}
	if n := len(hook.AllEntries()); n != 2 {
		t.Errorf("got %d warnings, want 2", n)
	}
}

func TestConnectLedgerSingleAttempt(t *testing.T) {
	resetDials(1)
	logger, _ := logtest.NewNullLogger()

	_, err := connectLedger(context.Background(), "test-dial", nil, 0, logrus.NewEntry(logger))
	if !errors.Is(err, posts.ErrLedgerUnreachable) {
		t.Errorf("got error %v, want %v", err, posts.ErrLedgerUnreachable)
	}
	if n := dialCount(); n != 1 {
		t.Errorf("got %d dials, want 1", n)
	}
}

func TestConnectLedgerPermanent(t *testing.T) {
	resetDials(0)
	logger, _ := logtest.NewNullLogger()

	_, err := connectLedger(context.Background(), "test-broken", nil, 10*time.Second, logrus.NewEntry(logger))
	if err == nil {
		t.Fatal("got no error")
	}
	if n := dialCount(); n != 1 {
		t.Errorf("got %d dials, want 1", n)
	}
}
