package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seriesbell/internal/repository"
)

type MetaRepo struct{ db DBTX }

func NewMetaRepo(db DBTX) repository.MetaRepository {
	return &MetaRepo{db: db}
}

func (repo *MetaRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM bot_meta WHERE key = ?`
	var value string
	err := repo.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return value, true, nil
}

func (repo *MetaRepo) Set(ctx context.Context, key, value string) error {
	const query = `
INSERT INTO bot_meta (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := repo.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("Set: ExecContext: %w", err)
	}
	return nil
}
