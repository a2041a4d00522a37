// Package gcs implements a content store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// Store is a Google Cloud Storage-based implementation of a content store.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

const objPrefix = "content/"

func objName(id posts.ContentID) string {
	return objPrefix + string(id)
}

func idFromObjName(name string) (posts.ContentID, bool) {
	if !strings.HasPrefix(name, objPrefix) {
		return "", false
	}
	return posts.ContentID(strings.TrimPrefix(name, objPrefix)), true
}

// Get gets the blob with the given ID.
func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	name := objName(id)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, posts.ErrNotFound
	}
	if err != nil {
		return nil, classify(errors.Wrapf(err, "opening object %s", name), posts.ErrStoreUnavailable)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, classify(errors.Wrapf(err, "reading contents of object %s", name), posts.ErrStoreUnavailable)
	}
	return b, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	id, err := posts.ComputeID(b)
	if err != nil {
		return "", false, posts.Mark(err, posts.ErrStoreWriteFailed)
	}

	var (
		name = objName(id)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)
	w.ContentType = "application/json"

	_, err = w.Write(b)
	if err != nil {
		w.Close()
		if isPreconditionFailed(err) {
			return id, false, nil
		}
		return "", false, classify(errors.Wrapf(err, "writing object %s", name), posts.ErrStoreWriteFailed)
	}
	err = w.Close()
	if isPreconditionFailed(err) {
		return id, false, nil
	}
	if err != nil {
		return "", false, classify(errors.Wrapf(err, "writing object %s", name), posts.ErrStoreWriteFailed)
	}
	return id, true, nil
}

func isPreconditionFailed(err error) bool {
	var e *googleapi.Error
	return stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed
}

// classify marks err as a rejection if the service answered with an error status,
// and as unavailability otherwise.
func classify(err, answered error) error {
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code < http.StatusInternalServerError {
		return posts.Mark(err, answered)
	}
	return posts.Mark(err, posts.ErrStoreUnavailable)
}

// ListIDs produces all blob IDs in the store, in lexicographic order.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	q := &storage.Query{Prefix: objPrefix}
	if start != "" {
		q.StartOffset = objName(start)
	}
	iter := s.bucket.Objects(ctx, q)
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return classify(errors.Wrap(err, "iterating over objects"), posts.ErrStoreUnavailable)
		}
		id, ok := idFromObjName(attrs.Name)
		if !ok || id <= start {
			continue
		}
		if err := f(id); err != nil {
			return err
		}
	}
}

func init() {
	content.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		var options []option.ClientOption
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
