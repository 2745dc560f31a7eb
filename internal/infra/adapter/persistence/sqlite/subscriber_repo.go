package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type SubscriberRepo struct{ db DBTX }

func NewSubscriberRepo(db DBTX) repository.SubscriberRepository {
	return &SubscriberRepo{db: db}
}

func (repo *SubscriberRepo) SelectByTypeAndTarget(ctx context.Context, t entity.SubscriberType, targetID string) (*entity.Subscriber, error) {
	const query = `
SELECT id, type, target_id
FROM subscribers
WHERE type = ? AND target_id = ?
LIMIT 1`
	var sub entity.Subscriber
	err := repo.db.QueryRowContext(ctx, query, string(t), targetID).Scan(&sub.ID, &sub.Type, &sub.TargetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("SelectByTypeAndTarget: QueryRowContext: %w", err)
	}
	return &sub, nil
}

func (repo *SubscriberRepo) Insert(ctx context.Context, sub *entity.Subscriber) (int64, error) {
	const query = `INSERT INTO subscribers (type, target_id) VALUES (?, ?)`
	res, err := repo.db.ExecContext(ctx, query, string(sub.Type), sub.TargetID)
	if err != nil {
		return 0, wrapWriteErr("Insert: ExecContext", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: LastInsertId: %w", err)
	}
	sub.ID = id
	return id, nil
}

func (repo *SubscriberRepo) SelectAllByTypeAndFeed(ctx context.Context, t entity.SubscriberType, feedID int64) ([]*entity.Subscriber, error) {
	const query = `
SELECT id, type, target_id
FROM subscribers
WHERE type = ?
  AND id IN (SELECT subscriber_id FROM feed_subscriptions WHERE feed_id = ?)
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query, string(t), feedID)
	if err != nil {
		return nil, fmt.Errorf("SelectAllByTypeAndFeed: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make([]*entity.Subscriber, 0, 16)
	for rows.Next() {
		var sub entity.Subscriber
		if err := rows.Scan(&sub.ID, &sub.Type, &sub.TargetID); err != nil {
			return nil, fmt.Errorf("SelectAllByTypeAndFeed: Scan: %w", err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectAllByTypeAndFeed: rows.Err: %w", err)
	}
	return subs, nil
}
