package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type FeedItemRepo struct{ db DBTX }

func NewFeedItemRepo(db DBTX) repository.FeedItemRepository {
	return &FeedItemRepo{db: db}
}

func (repo *FeedItemRepo) SelectLatestByFeedID(ctx context.Context, feedID int64) (*entity.FeedItem, error) {
	const query = `
SELECT id, feed_id, description, published
FROM feed_items
WHERE feed_id = ?
ORDER BY published DESC, id DESC
LIMIT 1`
	var (
		item      entity.FeedItem
		published int64
	)
	err := repo.db.QueryRowContext(ctx, query, feedID).Scan(
		&item.ID, &item.FeedID, &item.Description, &published,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SelectLatestByFeedID: QueryRowContext: %w", err)
	}
	item.Published = fromUnix(published)
	return &item, nil
}

// Replace writes a version idempotently: an existing (feed_id, description)
// row keeps its id and only has its published time refreshed.
func (repo *FeedItemRepo) Replace(ctx context.Context, item *entity.FeedItem) (int64, error) {
	const query = `
INSERT INTO feed_items (feed_id, description, published)
VALUES (?, ?, ?)
ON CONFLICT (feed_id, description) DO UPDATE SET published = excluded.published
RETURNING id`
	var id int64
	err := repo.db.QueryRowContext(ctx, query, item.FeedID, item.Description, toUnix(item.Published)).Scan(&id)
	if err != nil {
		return 0, wrapWriteErr("Replace: QueryRowContext", err)
	}
	item.ID = id
	return id, nil
}

func (repo *FeedItemRepo) CountByFeedID(ctx context.Context, feedID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM feed_items WHERE feed_id = ?`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, feedID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountByFeedID: QueryRowContext: %w", err)
	}
	return n, nil
}
