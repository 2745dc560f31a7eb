package sqlite_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/infra/adapter/persistence/sqlite"
)

func TestFeedItemRepo_Replace_IsIdempotent(t *testing.T) {
	_, repos := newStore(t)
	ctx := context.Background()
	feed := seedFeed(t, repos, "Kagurabachi", "k")

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &entity.FeedItem{FeedID: feed.ID, Description: "Chapter 1", Published: t1}
	id1, err := repos.Items.Replace(ctx, first)
	require.NoError(t, err)

	again := &entity.FeedItem{FeedID: feed.ID, Description: "Chapter 1", Published: t1}
	id2, err := repos.Items.Replace(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	n, err := repos.Items.CountByFeedID(ctx, feed.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFeedItemRepo_SelectLatest_UsesPublishedNotInsertOrder(t *testing.T) {
	_, repos := newStore(t)
	ctx := context.Background()
	feed := seedFeed(t, repos, "Sakamoto Days", "s")

	newer := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := repos.Items.Replace(ctx, &entity.FeedItem{FeedID: feed.ID, Description: "Chapter 10", Published: newer})
	require.NoError(t, err)
	_, err = repos.Items.Replace(ctx, &entity.FeedItem{FeedID: feed.ID, Description: "Chapter 9", Published: older})
	require.NoError(t, err)

	latest, err := repos.Items.SelectLatestByFeedID(ctx, feed.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "Chapter 10", latest.Description)
	assert.True(t, latest.Published.Equal(newer))
}

func TestFeedItemRepo_SelectLatest_None(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, feed_id, description, published")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "feed_id", "description", "published"}))

	got, err := sqlite.NewFeedItemRepo(db).SelectLatestByFeedID(context.Background(), 3)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedItemRepo_Replace_Error(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO feed_items").
		WithArgs(int64(1), "Episode 2", int64(1704067200)).
		WillReturnError(sql.ErrConnDone)

	_, err := sqlite.NewFeedItemRepo(db).Replace(context.Background(), &entity.FeedItem{
		FeedID: 1, Description: "Episode 2", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestFeedItemRepo_ForeignKey(t *testing.T) {
	_, repos := newStore(t)
	_, err := repos.Items.Replace(context.Background(), &entity.FeedItem{FeedID: 999, Description: "Chapter 1", Published: time.Now()})
	assert.Error(t, err)
}
