package sqlite_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/infra/adapter/persistence/sqlite"
	"seriesbell/internal/infra/db"
	"seriesbell/internal/repository"
)

// newStore returns a migrated in-memory database.
func newStore(t *testing.T) (*sqlite.Store, repository.Repositories) {
	t.Helper()
	conn, err := sql.Open("sqlite", db.DSN("file::memory:"))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.MigrateUp(context.Background(), conn))
	store := sqlite.NewStore(conn)
	return store, store.Repositories()
}

func seedFeed(t *testing.T, repos repository.Repositories, name, sourceID string) *entity.Feed {
	t.Helper()
	f := &entity.Feed{
		Name:       name,
		PlatformID: "mangadex",
		SourceID:   sourceID,
		ItemsID:    sourceID,
		SourceURL:  "https://mangadex.org/title/" + sourceID,
		Tags:       "series",
	}
	_, err := repos.Feeds.Insert(context.Background(), f)
	require.NoError(t, err)
	return f
}

func seedSubscriber(t *testing.T, repos repository.Repositories, typ entity.SubscriberType, target string) *entity.Subscriber {
	t.Helper()
	s := &entity.Subscriber{Type: typ, TargetID: target}
	_, err := repos.Subscribers.Insert(context.Background(), s)
	require.NoError(t, err)
	return s
}
