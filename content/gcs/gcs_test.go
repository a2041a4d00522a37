package gcs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bobg/posts"
	"github.com/bobg/posts/testutil"
)

func TestObjName(t *testing.T) {
	id, err := posts.ComputeID([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := idFromObjName(objName(id))
	if !ok || got != id {
		t.Errorf("got %s (%v), want %s", got, ok, id)
	}
	if _, ok := idFromObjName("other/" + string(id)); ok {
		t.Error("accepted an object outside the content prefix")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{err: &googleapi.Error{Code: http.StatusForbidden}, want: posts.ErrStoreWriteFailed},
		{err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: posts.ErrStoreUnavailable},
		{err: errors.New("dial tcp: connection refused"), want: posts.ErrStoreUnavailable},
	}
	for i, c := range cases {
		got := classify(errors.Wrap(c.err, "writing"), posts.ErrStoreWriteFailed)
		if !errors.Is(got, c.want) {
			t.Errorf("case %d: got %v, want %v", i, got, c.want)
		}
	}
	if !isPreconditionFailed(errors.Wrap(&googleapi.Error{Code: http.StatusPreconditionFailed}, "closing")) {
		t.Error("412 not recognized")
	}
}

const (
	credsVar  = "POSTS_GCS_TESTING_CREDS"
	bucketVar = "POSTS_GCS_TESTING_BUCKET"
)

func TestStore(t *testing.T) {
	var (
		creds  = os.Getenv(credsVar)
		bucket = os.Getenv(bucketVar)
	)
	if creds == "" || bucket == "" {
		t.Skipf("to run TestStore, set %s to the name of a credentials file and %s to a bucket name", credsVar, bucketVar)
	}

	ctx := context.Background()
	c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		t.Fatal(err)
	}

	s := New(c.Bucket(bucket))
	testutil.ReadWrite(ctx, t, s, []byte(`{"title":"`+hex.EncodeToString(nonce[:])+`"}`))
	testutil.NotFound(ctx, t, s)
}
