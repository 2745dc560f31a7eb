package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type FeedRepo struct{ db DBTX }

func NewFeedRepo(db DBTX) repository.FeedRepository {
	return &FeedRepo{db: db}
}

const feedColumns = `id, name, description, platform_id, source_id, items_id, source_url, cover_url, tags`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(s rowScanner) (*entity.Feed, error) {
	var f entity.Feed
	if err := s.Scan(&f.ID, &f.Name, &f.Description, &f.PlatformID, &f.SourceID,
		&f.ItemsID, &f.SourceURL, &f.CoverURL, &f.Tags); err != nil {
		return nil, err
	}
	return &f, nil
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	const query = `
SELECT ` + feedColumns + `
FROM feeds
WHERE id = ?
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) SelectBySourceID(ctx context.Context, platformID, sourceID string) (*entity.Feed, error) {
	const query = `
SELECT ` + feedColumns + `
FROM feeds
WHERE platform_id = ? AND source_id = ?
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, platformID, sourceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SelectBySourceID: QueryRowContext: %w", err)
	}
	return feed, nil
}

// SelectAllByTag matches tag as a whole comma-separated token.
func (repo *FeedRepo) SelectAllByTag(ctx context.Context, tag string) ([]*entity.Feed, error) {
	const query = `
SELECT ` + feedColumns + `
FROM feeds
WHERE ',' || REPLACE(tags, ' ', '') || ',' LIKE '%,' || ? || ',%'
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, tag)
	if err != nil {
		return nil, fmt.Errorf("SelectAllByTag: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 50)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("SelectAllByTag: Scan: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectAllByTag: rows.Err: %w", err)
	}
	return feeds, nil
}

func (repo *FeedRepo) Insert(ctx context.Context, feed *entity.Feed) (int64, error) {
	const query = `
INSERT INTO feeds (name, description, platform_id, source_id, items_id, source_url, cover_url, tags)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := repo.db.ExecContext(ctx, query,
		feed.Name, feed.Description, feed.PlatformID, feed.SourceID,
		feed.ItemsID, feed.SourceURL, feed.CoverURL, feed.Tags,
	)
	if err != nil {
		return 0, wrapWriteErr("Insert: ExecContext", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: LastInsertId: %w", err)
	}
	feed.ID = id
	return id, nil
}

func (repo *FeedRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM feeds WHERE id = ?`
	if _, err := repo.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("Delete: ExecContext: %w", err)
	}
	return nil
}
