package posts_test

import (
	"context"
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/posts"
)

func TestComputeIDDeterministic(t *testing.T) {
	f := func(b []byte) bool {
		id1, err := posts.ComputeID(b)
		if err != nil {
			t.Fatal(err)
		}
		id2, err := posts.ComputeID(append([]byte(nil), b...))
		if err != nil {
			t.Fatal(err)
		}
		return id1 == id2
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestComputeIDShape(t *testing.T) {
	id, err := posts.ComputeID([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(id), "Qm") || len(id) != 46 {
		t.Errorf("got %s, want a 46-character CIDv0", id)
	}
	other, err := posts.ComputeID([]byte("hello!"))
	if err != nil {
		t.Fatal(err)
	}
	if other == id {
		t.Error("distinct blobs produced the same id")
	}

	parsed, err := posts.ParseContentID(" " + string(id) + "\n")
	if err != nil {
		t.Fatal(err)
	}
	if parsed != id {
		t.Errorf("got %s, want %s", parsed, id)
	}
}

func TestParseContentIDInvalid(t *testing.T) {
	for _, s := range []string{"", "Qm123", "not a cid", "../etc/passwd"} {
		_, err := posts.ParseContentID(s)
		if !errors.Is(err, posts.ErrInvalid) {
			t.Errorf("ParseContentID(%q): got %v, want ErrInvalid", s, err)
		}
	}
}

func TestRecordEncoding(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := posts.ContentRecord{Title: "Hello", Content: "World", Author: "Alice"}.Normalize(now)

	b1, err := rec.Encode()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := rec.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(b1) != string(b2) {
		t.Fatalf("encodings differ: %s vs %s", b1, b2)
	}

	const want = `{"title":"Hello","content":"World","author":"Alice","timestamp":"2024-03-01T12:00:00Z"}`
	if string(b1) != want {
		t.Errorf("got %s, want %s", b1, want)
	}

	got, err := posts.DecodeRecord(b1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		rec     posts.ContentRecord
		wantErr bool
	}{
		{rec: posts.ContentRecord{Title: "t", Content: "c"}},
		{rec: posts.ContentRecord{Title: "t", Content: "c", Author: "a"}},
		{rec: posts.ContentRecord{Content: "c"}, wantErr: true},
		{rec: posts.ContentRecord{Title: "  ", Content: "c"}, wantErr: true},
		{rec: posts.ContentRecord{Title: "t"}, wantErr: true},
	}
	for i, c := range cases {
		err := c.rec.Validate()
		if c.wantErr {
			if posts.KindOf(err) != posts.KindValidation {
				t.Errorf("case %d: got %v, want a validation error", i, err)
			}
		} else if err != nil {
			t.Errorf("case %d: %s", i, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("UTC-4", -4*60*60))
	got := posts.ContentRecord{Title: " t ", Content: "c"}.Normalize(now)
	if got.Author != posts.DefaultAuthor {
		t.Errorf("got author %q, want %q", got.Author, posts.DefaultAuthor)
	}
	if got.Title != "t" {
		t.Errorf("got title %q", got.Title)
	}
	if !got.CreatedAt.Equal(now) || got.CreatedAt.Location() != time.UTC {
		t.Errorf("got created-at %s", got.CreatedAt)
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want posts.Kind
	}{
		{err: nil, want: posts.KindUnknown},
		{err: errors.New("x"), want: posts.KindUnknown},
		{err: posts.Mark(errors.New("dial tcp: refused"), posts.ErrStoreUnavailable), want: posts.KindTransport},
		{err: errors.Wrap(posts.ErrLedgerUnreachable, "submitting"), want: posts.KindTransport},
		{err: posts.ErrNotFound, want: posts.KindNotFound},
		{err: errors.Wrap(posts.ErrPostNotFound, "voting"), want: posts.KindNotFound},
		{err: posts.ErrLedgerRejected, want: posts.KindRejected},
		{err: posts.Mark(errors.New("deadline"), posts.ErrTimeout), want: posts.KindIndeterminate},
		{err: posts.ErrInvalid, want: posts.KindValidation},
	}
	for i, c := range cases {
		if got := posts.KindOf(c.err); got != c.want {
			t.Errorf("case %d: got %s, want %s", i, got, c.want)
		}
	}
}

func TestMarkKeepsMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := posts.Mark(cause, posts.ErrStoreUnavailable)
	if err.Error() != "connection refused" {
		t.Errorf("got message %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("lost the cause")
	}
	if !errors.Is(errors.Wrap(err, "getting blob"), posts.ErrStoreUnavailable) {
		t.Error("lost the kind through Wrap")
	}
	if posts.Mark(nil, posts.ErrNotFound) != nil {
		t.Error("Mark(nil) should be nil")
	}
}

func TestMergeAndPlaceholder(t *testing.T) {
	var (
		created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		entry   = posts.LedgerEntry{PostID: 1, Creator: "0xabc", ContentRef: "Qm123", Rating: 2, CreatedAt: created}
		rec     = posts.ContentRecord{Title: "Hello", Content: "World", Author: "Alice", CreatedAt: created.Add(-time.Minute)}
	)

	got := posts.Merge(entry, rec)
	want := posts.MergedPost{
		PostID:           1,
		Creator:          "0xabc",
		ContentRef:       "Qm123",
		Rating:           2,
		CreatedAt:        created,
		Title:            "Hello",
		Content:          "World",
		Author:           "Alice",
		PublishedAt:      created.Add(-time.Minute),
		ContentAvailable: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(entry, got.Entry()); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	ph := posts.Placeholder(entry)
	if ph.ContentAvailable {
		t.Error("placeholder claims content")
	}
	if ph.Title != posts.PlaceholderTitle || ph.Content != posts.PlaceholderContent || ph.Author != posts.PlaceholderAuthor {
		t.Errorf("unexpected placeholder %+v", ph)
	}
	if ph.Rating != 2 || ph.PostID != 1 {
		t.Errorf("placeholder lost ledger fields: %+v", ph)
	}
}

func TestParseDirection(t *testing.T) {
	for s, want := range map[string]posts.Direction{"up": posts.Up, "upvote": posts.Up, "down": posts.Down, "downvote": posts.Down} {
		got, err := posts.ParseDirection(s)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s: got %s, want %s", s, got, want)
		}
	}
	if _, err := posts.ParseDirection("sideways"); !errors.Is(err, posts.ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

func TestFinalityContext(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{0, posts.DefaultFinalityTimeout},
		{-time.Second, posts.DefaultFinalityTimeout},
		{time.Second, time.Second},
	}
	for _, tc := range cases {
		start := time.Now()
		ctx, cancel := posts.FinalityContext(context.Background(), tc.timeout)
		deadline, ok := ctx.Deadline()
		cancel()
		if !ok {
			t.Errorf("timeout %s: no deadline", tc.timeout)
			continue
		}
		if got := deadline.Sub(start); got < tc.want-time.Second || got > tc.want+time.Second {
			t.Errorf("timeout %s: deadline %s away, want about %s", tc.timeout, got, tc.want)
		}
	}
}

func TestDecodeRecordUndecodable(t *testing.T) {
	_, err := posts.DecodeRecord([]byte("not a record"))
	if !errors.Is(err, posts.ErrUndecodable) {
		t.Errorf("got error %v, want %v", err, posts.ErrUndecodable)
	}
}
