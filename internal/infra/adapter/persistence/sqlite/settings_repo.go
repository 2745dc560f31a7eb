package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type ServerSettingsRepo struct{ db DBTX }

func NewServerSettingsRepo(db DBTX) repository.ServerSettingsRepository {
	return &ServerSettingsRepo{db: db}
}

func (repo *ServerSettingsRepo) Select(ctx context.Context, guildID string) (*entity.ServerSettings, error) {
	const query = `SELECT settings FROM server_settings WHERE guild_id = ? LIMIT 1`
	var doc string
	err := repo.db.QueryRowContext(ctx, query, guildID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Select: QueryRowContext: %w", err)
	}
	settings, err := entity.UnmarshalServerSettings(doc)
	if err != nil {
		return nil, fmt.Errorf("Select: %w", err)
	}
	return settings, nil
}

// Replace stores the whole document in a single upsert.
func (repo *ServerSettingsRepo) Replace(ctx context.Context, guildID string, settings *entity.ServerSettings) error {
	const query = `
INSERT INTO server_settings (guild_id, settings)
VALUES (?, ?)
ON CONFLICT (guild_id) DO UPDATE SET settings = excluded.settings`
	doc, err := settings.MarshalDocument()
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, query, guildID, doc); err != nil {
		return fmt.Errorf("Replace: ExecContext: %w", err)
	}
	return nil
}

func (repo *ServerSettingsRepo) ListGuildIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT guild_id FROM server_settings ORDER BY guild_id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListGuildIDs: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListGuildIDs: Scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListGuildIDs: rows.Err: %w", err)
	}
	return ids, nil
}
