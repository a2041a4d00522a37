// Package file implements a content store as a file hierarchy.
package file

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// Store is a file-based implementation of a content store.
// Each blob is a file named by its ID,
// in a subdirectory named by the ID's last two characters.
type Store struct {
	root string
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(id posts.ContentID) string {
	h := string(id)
	return filepath.Join(s.blobroot(), h[len(h)-2:], h)
}

// Get gets the blob with the given ID.
func (s *Store) Get(_ context.Context, id posts.ContentID) ([]byte, error) {
	if _, err := posts.ParseContentID(string(id)); err != nil {
		return nil, posts.ErrNotFound
	}
	path := s.blobpath(id)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, posts.ErrNotFound
	}
	return blob, posts.Mark(errors.Wrapf(err, "reading %s", path), posts.ErrStoreUnavailable)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b []byte) (posts.ContentID, bool, error) {
	id, err := posts.ComputeID(b)
	if err != nil {
		return "", false, posts.Mark(err, posts.ErrStoreWriteFailed)
	}

	var (
		path = s.blobpath(id)
		dir  = filepath.Dir(path)
	)

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", false, posts.Mark(errors.Wrapf(err, "ensuring path %s exists", dir), posts.ErrStoreWriteFailed)
	}

	// Write to a temp file and link it into place,
	// so a concurrent reader never sees a partial blob.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", false, posts.Mark(errors.Wrapf(err, "creating temp file in %s", dir), posts.ErrStoreWriteFailed)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(b)
	if err != nil {
		tmp.Close()
		return "", false, posts.Mark(errors.Wrapf(err, "writing data to %s", tmp.Name()), posts.ErrStoreWriteFailed)
	}
	err = tmp.Close()
	if err != nil {
		return "", false, posts.Mark(errors.Wrapf(err, "closing %s", tmp.Name()), posts.ErrStoreWriteFailed)
	}

	err = os.Link(tmp.Name(), path)
	if os.IsExist(err) {
		return id, false, nil
	}
	if err != nil {
		return "", false, posts.Mark(errors.Wrapf(err, "linking %s", path), posts.ErrStoreWriteFailed)
	}

	return id, true, nil
}

// ListIDs produces all blob IDs in the store, in lexicographic order.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	var ids []posts.ContentID
	err := filepath.WalkDir(s.blobroot(), func(path string, d fs.DirEntry, err error) error {
		if os.IsNotExist(err) && path == s.blobroot() {
			return filepath.SkipDir
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		id, err := posts.ParseContentID(d.Name())
		if err != nil {
			// Temp files and strays.
			return nil
		}
		if id > start {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "walking %s", s.blobroot())
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(id); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	content.Register("file", func(_ context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
