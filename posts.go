package posts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

type (
	// ContentID is the identifier of a blob in a content store:
	// the string form of a CID.
	ContentID string

	// ContentRecord is the payload of a post,
	// as stored in a content store.
	ContentRecord struct {
		Title     string    `json:"title"`
		Content   string    `json:"content"`
		Author    string    `json:"author"`
		CreatedAt time.Time `json:"timestamp"`
	}
)

// DefaultAuthor is the author of a post that does not name one.
const DefaultAuthor = "Anonymous"

// ComputeID computes the CIDv0 of a blob:
// the base58-encoded sha2-256 multihash of its bytes.
func ComputeID(b []byte) (ContentID, error) {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.Wrap(err, "hashing blob")
	}
	return ContentID(cid.NewCidV0(mh).String()), nil
}

// ParseContentID checks that s is a well-formed CID.
// The result is normalized to the CID's canonical string form.
func ParseContentID(s string) (ContentID, error) {
	c, err := cid.Decode(strings.TrimSpace(s))
	if err != nil {
		return "", Mark(errors.Wrapf(err, "decoding content id %q", s), ErrInvalid)
	}
	return ContentID(c.String()), nil
}

func (id ContentID) String() string {
	return string(id)
}

// Validate reports whether r has the fields a post requires.
func (r ContentRecord) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return Mark(errors.New("title is required"), ErrInvalid)
	}
	if strings.TrimSpace(r.Content) == "" {
		return Mark(errors.New("content is required"), ErrInvalid)
	}
	return nil
}

// Normalize fills in the defaults for a record about to be published.
// A blank author becomes DefaultAuthor,
// and a zero CreatedAt becomes now.
func (r ContentRecord) Normalize(now time.Time) ContentRecord {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	if r.Author == "" {
		r.Author = DefaultAuthor
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r
}

// Encode serializes r.
// Equal records always produce identical bytes,
// and so identical content IDs.
func (r ContentRecord) Encode() ([]byte, error) {
	b, err := json.Marshal(r)
	return b, errors.Wrap(err, "encoding content record")
}

// DecodeRecord parses a serialized ContentRecord.
func DecodeRecord(b []byte) (ContentRecord, error) {
	var r ContentRecord
	err := json.Unmarshal(b, &r)
	return r, Mark(errors.Wrap(err, "decoding content record"), ErrUndecodable)
}
