package pg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bobg/posts/testutil"
)

func TestStore(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		// The database may outlive the test, so make the blob unique.
		data := []byte(fmt.Sprintf(`{"title":"Hello","content":"World","author":"Alice","timestamp":%q}`, time.Now().Format(time.RFC3339Nano)))
		testutil.ReadWrite(ctx, t, store, data)
		testutil.NotFound(ctx, t, store)
	})
}

const connVar = "POSTS_PG_TESTING_CONN"

func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, store)
}
