package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "bot.db")

	conn, err := Open(ctx, "sqlite://"+src, src)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, MigrateUp(ctx, conn))
	_, err = conn.ExecContext(ctx, `INSERT INTO bot_meta (key, value) VALUES ('snapshot_test', 'x')`)
	require.NoError(t, err)

	target := filepath.Join(dir, "backups", "bot-snapshot.db")
	require.NoError(t, Snapshot(ctx, conn, target))
	assert.FileExists(t, target)

	copyConn, err := Open(ctx, "sqlite://"+target, target)
	require.NoError(t, err)
	defer func() { _ = copyConn.Close() }()
	var v string
	require.NoError(t, copyConn.QueryRowContext(ctx, `SELECT value FROM bot_meta WHERE key = 'snapshot_test'`).Scan(&v))
	assert.Equal(t, "x", v)

	assert.Error(t, Snapshot(ctx, conn, target), "existing target is not overwritten")
	assert.Error(t, Snapshot(ctx, conn, ""))
}
