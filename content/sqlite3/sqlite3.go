// Package sqlite3 implements a content store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/posts"
	"github.com/bobg/posts/content"
)

var _ posts.Lister = &Store{}

// Store is a Sqlite-based content store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `content` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS content (
  id TEXT PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Get gets the blob with the given ID.
func (s *Store) Get(ctx context.Context, id posts.ContentID) ([]byte, error) {
	const q = `SELECT data FROM content WHERE id = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, string(id)).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, posts.ErrNotFound
	}
	return b, posts.Mark(errors.Wrapf(err, "getting %s", id), posts.ErrStoreUnavailable)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b []byte) (posts.ContentID, bool, error) {
	const q = `INSERT INTO content (id, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	id, err := posts.ComputeID(b)
	if err != nil {
		return "", false, posts.Mark(err, posts.ErrStoreWriteFailed)
	}
	if b == nil {
		b = []byte{}
	}

	res, err := s.db.ExecContext(ctx, q, string(id), b)
	if err != nil {
		return "", false, posts.Mark(errors.Wrap(err, "inserting blob"), posts.ErrStoreWriteFailed)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return "", false, posts.Mark(errors.Wrap(err, "counting affected rows"), posts.ErrStoreWriteFailed)
	}

	return id, aff > 0, nil
}

// ListIDs produces all blob IDs in the store, in lexicographic order.
func (s *Store) ListIDs(ctx context.Context, start posts.ContentID, f func(posts.ContentID) error) error {
	const q = `SELECT id FROM content WHERE id > $1 ORDER BY id`
	return sqlutil.ForQueryRows(ctx, s.db, q, string(start), func(id string) error {
		return f(posts.ContentID(id))
	})
}

// Ping implements posts.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return posts.Mark(s.db.PingContext(ctx), posts.ErrStoreUnavailable)
}

func init() {
	content.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (posts.ContentStore, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
