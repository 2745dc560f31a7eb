package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 1, cfg.MaxOpenConns)
	assert.Equal(t, 1, cfg.MaxIdleConns)
	assert.Equal(t, time.Duration(0), cfg.ConnMaxLifetime)
}

func TestGetConnectionConfigFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		maxOpen  string
		lifetime string
		wantOpen int
		wantLife time.Duration
	}{
		{name: "defaults", wantOpen: 1},
		{name: "valid values", maxOpen: "4", lifetime: "1h", wantOpen: 4, wantLife: time.Hour},
		{name: "non-numeric falls back", maxOpen: "many", wantOpen: 1},
		{name: "zero falls back", maxOpen: "0", lifetime: "-1s", wantOpen: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_MAX_OPEN_CONNS", tt.maxOpen)
			t.Setenv("DB_CONN_MAX_LIFETIME", tt.lifetime)

			cfg := getConnectionConfigFromEnv()
			assert.Equal(t, tt.wantOpen, cfg.MaxOpenConns)
			assert.Equal(t, tt.wantLife, cfg.ConnMaxLifetime)
		})
	}
}

func TestDSN(t *testing.T) {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "sqlite scheme", in: "sqlite://data/bot.db", want: "data/bot.db?" + pragmas},
		{name: "sqlite short scheme", in: "sqlite:data/bot.db", want: "data/bot.db?" + pragmas},
		{name: "plain path", in: "bot.db", want: "bot.db?" + pragmas},
		{name: "existing query", in: "file:bot.db?mode=rwc", want: "file:bot.db?mode=rwc&" + pragmas},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.in))
		})
	}
}

func TestOpen_CreatesDirectoryAndEnablesForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.db")

	db, err := Open(context.Background(), "sqlite://"+path, path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.FileExists(t, path)
}
