// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"seriesbell/internal/infra/adapter/persistence/sqlite"
	"seriesbell/internal/infra/db"
)

// NewStore returns a store over a fresh, migrated in-memory database that is
// closed when the test ends.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	conn, err := sql.Open("sqlite", db.DSN("file::memory:"))
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(context.Background(), conn))
	return sqlite.NewStore(conn)
}
