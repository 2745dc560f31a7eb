package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
)

// SchemaVersionKey is the bot_meta key recording the applied migration.
const SchemaVersionKey = "schema_version"

type migration struct {
	version int
	name    string
	stmts   []string
	// data runs after stmts inside the same transaction.
	data func(ctx context.Context, tx *sql.Tx) error
}

// migrations are applied in order and never edited once released.
var migrations = []migration{
	{
		version: 1,
		name:    "feeds",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS feeds (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    platform_id TEXT NOT NULL,
    source_id   TEXT NOT NULL,
    items_id    TEXT NOT NULL,
    source_url  TEXT NOT NULL UNIQUE,
    cover_url   TEXT NOT NULL DEFAULT '',
    tags        TEXT NOT NULL DEFAULT '',
    UNIQUE (platform_id, source_id)
)`,
			`CREATE TABLE IF NOT EXISTS feed_items (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id     INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    description TEXT NOT NULL,
    published   INTEGER NOT NULL,
    UNIQUE (feed_id, description)
)`,
			`CREATE TABLE IF NOT EXISTS subscribers (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    type      TEXT NOT NULL,
    target_id TEXT NOT NULL,
    UNIQUE (type, target_id)
)`,
			`CREATE TABLE IF NOT EXISTS feed_subscriptions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_id       INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    subscriber_id INTEGER NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
    UNIQUE (feed_id, subscriber_id)
)`,
			// 最新アイテム取得用
			`CREATE INDEX IF NOT EXISTS idx_feed_items_feed_published ON feed_items(feed_id, published DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_feed_subscriptions_subscriber ON feed_subscriptions(subscriber_id)`,
		},
	},
	{
		version: 2,
		name:    "server_settings",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS server_settings (
    guild_id TEXT PRIMARY KEY,
    settings TEXT NOT NULL DEFAULT '{}'
)`,
		},
		data: upgradeLegacySettings,
	},
	{
		version: 3,
		name:    "voice_sessions",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS voice_sessions (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    guild_id   TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    join_time  INTEGER NOT NULL,
    leave_time INTEGER NOT NULL,
    last_seen  INTEGER,
    UNIQUE (user_id, channel_id, join_time)
)`,
			`CREATE INDEX IF NOT EXISTS idx_voice_sessions_guild_join ON voice_sessions(guild_id, join_time)`,
			`CREATE INDEX IF NOT EXISTS idx_voice_sessions_user_guild ON voice_sessions(user_id, guild_id)`,
		},
	},
}

// LatestVersion is the schema version produced by MigrateUp.
func LatestVersion() int {
	return migrations[len(migrations)-1].version
}

// MigrateUp brings the schema to LatestVersion. Each migration runs in its
// own transaction together with the version bump.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bot_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("create bot_meta: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		slog.Info("migration applied",
			slog.Int("version", m.version),
			slog.String("name", m.name))
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM bot_meta WHERE key = ?`, SchemaVersionKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}

func apply(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if m.data != nil {
		if err = m.data(ctx, tx); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO bot_meta (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		SchemaVersionKey, strconv.Itoa(m.version)); err != nil {
		return err
	}
	return tx.Commit()
}

// upgradeLegacySettings rewrites rows stored in the old flat layout
// ({"channel_id": ..., "subscribe_role_id": ...}) into the nested document.
func upgradeLegacySettings(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT guild_id, settings FROM server_settings`)
	if err != nil {
		return fmt.Errorf("scan settings: %w", err)
	}
	type pending struct{ guildID, doc string }
	var updates []pending
	for rows.Next() {
		var guildID, doc string
		if err := rows.Scan(&guildID, &doc); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan settings: %w", err)
		}
		upgraded, changed, err := UpgradeSettingsDocument(doc)
		if err != nil {
			slog.Warn("skipping unreadable server settings",
				slog.String("guild_id", guildID),
				slog.Any("error", err))
			continue
		}
		if changed {
			updates = append(updates, pending{guildID: guildID, doc: upgraded})
		}
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE server_settings SET settings = ? WHERE guild_id = ?`, u.doc, u.guildID); err != nil {
			return fmt.Errorf("rewrite settings for guild %s: %w", u.guildID, err)
		}
	}
	if len(updates) > 0 {
		slog.Info("legacy server settings migrated", slog.Int("rows", len(updates)))
	}
	return nil
}

// legacyKey places a flat top-level key into a section of the document.
type legacyKey struct {
	flat, section, key string
}

var legacyKeys = []legacyKey{
	{flat: "enabled", section: "feeds", key: "enabled"},
	{flat: "channel_id", section: "feeds", key: "channel_id"},
	{flat: "subscribe_role_id", section: "feeds", key: "subscribe_role_id"},
	{flat: "unsubscribe_role_id", section: "feeds", key: "unsubscribe_role_id"},
	{flat: "voice_enabled", section: "voice", key: "enabled"},
}

// UpgradeSettingsDocument converts a flat settings document to the nested
// form. Documents already in the nested form are returned unchanged.
func UpgradeSettingsDocument(doc string) (string, bool, error) {
	if doc == "" {
		return "{}", true, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return "", false, err
	}

	sections := map[string]map[string]json.RawMessage{}
	section := func(name string) (map[string]json.RawMessage, error) {
		if m, ok := sections[name]; ok {
			return m, nil
		}
		m := map[string]json.RawMessage{}
		if existing, ok := raw[name]; ok && string(existing) != "null" {
			if err := json.Unmarshal(existing, &m); err != nil {
				return nil, fmt.Errorf("%s section: %w", name, err)
			}
		}
		sections[name] = m
		return m, nil
	}

	changed := false
	for _, lk := range legacyKeys {
		v, ok := raw[lk.flat]
		if !ok {
			continue
		}
		m, err := section(lk.section)
		if err != nil {
			return "", false, err
		}
		delete(raw, lk.flat)
		changed = true
		if _, exists := m[lk.key]; !exists && string(v) != "null" {
			m[lk.key] = v
		}
	}
	if !changed {
		return doc, false, nil
	}

	for name, m := range sections {
		encoded, err := json.Marshal(m)
		if err != nil {
			return "", false, err
		}
		raw[name] = encoded
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return "", false, err
	}
	return string(out), true, nil
}
