// Package ipfs implements a content store on an IPFS node's HTTP API.
package ipfs

import (
	"bytes"
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.ContentStore = &Store{}

// Store keeps blobs on an IPFS node.
// IDs are whatever CIDs the node assigns,
// which depend on its chunking and DAG settings
// but are stable for a given node configuration.
type Store struct {
	sh      *shell.Shell
	offline bool
}

// Option configures a Store.
type Option func(*Store)

// Offline makes Get consult only the node's local blocks,
// so an unknown ID fails fast with ErrNotFound
// instead of waiting on a network-wide search.
func Offline(offline bool) Option {
	return func(s *Store) {
		s.offline = offline
	}
}

// New produces a new Store talking to the node at url
// (e.g. http://localhost:5001).
// Writes cannot be canceled through their context,
// so timeout bounds every request.
func New(url string, timeout time.Duration, opts ...Option) *Store {
	s := &Store{
		sh: shell.NewShellWithClient(url, &http.Client{Timeout: timeout}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put adds a blob to the node and pins it.
// The node does not say whether the blob was new,
// so the boolean result is always true.
func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, posts.Mark(err, posts.ErrStoreUnavailable)
	}
	hash, err := s.sh.Add(bytes.NewReader(b), shell.Pin(true))
	if err != nil {
		return "", false, classify(errors.Wrap(err, "adding blob"), posts.ErrStoreWriteFailed)
	}
	id, err := posts.ParseContentID(hash)
	if err != nil {
		return "", false, posts.Mark(errors.Wrapf(err, "node returned bad id %q", hash), posts.ErrStoreWriteFailed)
	}
	return id, true, nil
}

// Get gets the blob with the given ID.
func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	req := s.sh.Request("cat", string(id))
	if s.offline {
		req = req.Option("offline", true)
	}
	resp, err := req.Send(ctx)
	if err != nil {
		return nil, classify(errors.Wrapf(err, "requesting %s", id), posts.ErrNotFound)
	}
	defer resp.Close()
	if resp.Error != nil {
		return nil, classify(errors.Wrapf(resp.Error, "getting %s", id), posts.ErrNotFound)
	}

	b, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, posts.Mark(errors.Wrapf(err, "reading %s", id), posts.ErrStoreUnavailable)
	}
	return b, nil
}

// Ping asks the node for its version.
func (s *Store) Ping(ctx context.Context) error {
	var out struct{ Version string }
	err := s.sh.Request("version").Exec(ctx, &out)
	return classify(errors.Wrap(err, "getting node version"), posts.ErrStoreUnavailable)
}

// Node errors that mean the content is not there
// (or cannot be, because the ID is malformed).
var missingMarkers = []string{
	"not found",
	"no link named",
	"invalid path",
	"invalid cid",
	"failed to parse",
}

// classify turns an error from the node into one of the store sentinels.
// Errors the node reported itself are marked with answered,
// except that "missing content" errors are always ErrNotFound on reads.
// Everything else is a transport failure.
func classify(err, answered error) error {
	if err == nil {
		return nil
	}
	var e *shell.Error
	if !stderrs.As(err, &e) {
		return posts.Mark(err, posts.ErrStoreUnavailable)
	}
	if answered == posts.ErrNotFound {
		msg := strings.ToLower(e.Message)
		for _, m := range missingMarkers {
			if strings.Contains(msg, m) {
				return posts.Mark(err, posts.ErrNotFound)
			}
		}
		return posts.Mark(err, posts.ErrStoreUnavailable)
	}
	return posts.Mark(err, answered)
}

func init() {
	content.Register("ipfs", func(_ context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		url, ok := conf["url"].(string)
		if !ok {
			url = "http://localhost:5001"
		}
		timeout := 30 * time.Second
		if s, ok := conf["timeout"].(string); ok {
			d, err := time.ParseDuration(s)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing timeout %q", s)
			}
			timeout = d
		}
		offline, _ := conf["offline"].(bool)
		return New(url, timeout, Offline(offline)), nil
	})
}
