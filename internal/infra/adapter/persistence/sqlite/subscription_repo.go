package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"seriesbell/internal/common/pagination"
	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type SubscriptionRepo struct{ db DBTX }

func NewSubscriptionRepo(db DBTX) repository.SubscriptionRepository {
	return &SubscriptionRepo{db: db}
}

func (repo *SubscriptionRepo) Insert(ctx context.Context, feedID, subscriberID int64) (int64, error) {
	const query = `INSERT INTO feed_subscriptions (feed_id, subscriber_id) VALUES (?, ?)`
	res, err := repo.db.ExecContext(ctx, query, feedID, subscriberID)
	if err != nil {
		return 0, wrapWriteErr("Insert: ExecContext", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: LastInsertId: %w", err)
	}
	return id, nil
}

func (repo *SubscriptionRepo) DeleteSubscription(ctx context.Context, feedID, subscriberID int64) (bool, error) {
	const query = `DELETE FROM feed_subscriptions WHERE feed_id = ? AND subscriber_id = ?`
	res, err := repo.db.ExecContext(ctx, query, feedID, subscriberID)
	if err != nil {
		return false, fmt.Errorf("DeleteSubscription: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteSubscription: RowsAffected: %w", err)
	}
	return n > 0, nil
}

func (repo *SubscriptionRepo) ExistsByFeedID(ctx context.Context, feedID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM feed_subscriptions WHERE feed_id = ?)`
	var exists bool
	if err := repo.db.QueryRowContext(ctx, query, feedID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ExistsByFeedID: QueryRowContext: %w", err)
	}
	return exists, nil
}

func (repo *SubscriptionRepo) CountBySubscriberID(ctx context.Context, subscriberID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM feed_subscriptions WHERE subscriber_id = ?`
	var n int64
	if err := repo.db.QueryRowContext(ctx, query, subscriberID).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountBySubscriberID: QueryRowContext: %w", err)
	}
	return n, nil
}

// SelectPaginatedWithLatest returns the subscriber's feeds ordered by name,
// each joined with its latest item by published time.
func (repo *SubscriptionRepo) SelectPaginatedWithLatest(ctx context.Context, subscriberID int64, page, perPage int) ([]entity.FeedWithLatest, error) {
	const query = `
SELECT f.id, f.name, f.description, f.platform_id, f.source_id, f.items_id, f.source_url, f.cover_url, f.tags,
       fi.id, fi.description, fi.published
FROM feed_subscriptions s
JOIN feeds f ON f.id = s.feed_id
LEFT JOIN feed_items fi ON fi.id = (
    SELECT id FROM feed_items
    WHERE feed_id = f.id
    ORDER BY published DESC, id DESC
    LIMIT 1
)
WHERE s.subscriber_id = ?
ORDER BY f.name ASC, f.id ASC
LIMIT ? OFFSET ?`
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return []entity.FeedWithLatest{}, nil
	}
	offset := pagination.CalculateOffset(page, perPage)

	rows, err := repo.db.QueryContext(ctx, query, subscriberID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("SelectPaginatedWithLatest: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.FeedWithLatest, 0, perPage)
	for rows.Next() {
		var (
			f         entity.Feed
			itemID    sql.NullInt64
			itemDesc  sql.NullString
			published sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Description, &f.PlatformID, &f.SourceID,
			&f.ItemsID, &f.SourceURL, &f.CoverURL, &f.Tags,
			&itemID, &itemDesc, &published); err != nil {
			return nil, fmt.Errorf("SelectPaginatedWithLatest: Scan: %w", err)
		}
		entry := entity.FeedWithLatest{Feed: &f}
		if itemID.Valid {
			entry.Latest = &entity.FeedItem{
				ID:          itemID.Int64,
				FeedID:      f.ID,
				Description: itemDesc.String,
				Published:   fromUnix(published.Int64),
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectPaginatedWithLatest: rows.Err: %w", err)
	}
	return out, nil
}

// SearchByName performs a case-insensitive substring match on the names of
// the subscriber's feeds. Names are folded in Go: SQLite's LOWER and LIKE
// only fold ASCII.
func (repo *SubscriptionRepo) SearchByName(ctx context.Context, subscriberID int64, partial string, limit int) ([]*entity.Feed, error) {
	const query = `
SELECT f.id, f.name, f.description, f.platform_id, f.source_id, f.items_id, f.source_url, f.cover_url, f.tags
FROM feeds f
JOIN feed_subscriptions s ON s.feed_id = f.id
WHERE s.subscriber_id = ?
ORDER BY f.name ASC, f.id ASC`
	if limit < 1 {
		return []*entity.Feed{}, nil
	}
	rows, err := repo.db.QueryContext(ctx, query, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("SearchByName: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	needle := strings.ToLower(partial)
	feeds := make([]*entity.Feed, 0, limit)
	for rows.Next() && len(feeds) < limit {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("SearchByName: Scan: %w", err)
		}
		if strings.Contains(strings.ToLower(feed.Name), needle) {
			feeds = append(feeds, feed)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchByName: rows.Err: %w", err)
	}
	return feeds, nil
}
