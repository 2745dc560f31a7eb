package sqlite

import (
	"context"
	"fmt"
	"math"
	"time"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/repository"
)

type VoiceSessionRepo struct{ db DBTX }

func NewVoiceSessionRepo(db DBTX) repository.VoiceSessionRepository {
	return &VoiceSessionRepo{db: db}
}

// spansCTE clips every session in the guild and range to [join_time, now].
// Open sessions (leave_time = join_time) extend to now.
// Args: now, now, guild_id, since, until.
const spansCTE = `
WITH spans AS (
    SELECT user_id, channel_id, join_time,
           MAX(MIN(CASE WHEN leave_time = join_time THEN ? ELSE leave_time END, ?), join_time) AS end_time
    FROM voice_sessions
    WHERE guild_id = ? AND join_time >= ? AND join_time <= ?
)`

func spanArgs(guildID string, r entity.TimeRange, now time.Time) []any {
	since, until := int64(math.MinInt64), int64(math.MaxInt64)
	if r.Since != nil {
		since = toUnix(*r.Since)
	}
	if r.Until != nil {
		until = toUnix(*r.Until)
	}
	n := toUnix(now)
	return []any{n, n, guildID, since, until}
}

func (repo *VoiceSessionRepo) Insert(ctx context.Context, s *entity.VoiceSession) (int64, error) {
	const query = `
INSERT INTO voice_sessions (user_id, guild_id, channel_id, join_time, leave_time)
VALUES (?, ?, ?, ?, ?)`
	res, err := repo.db.ExecContext(ctx, query,
		s.UserID, s.GuildID, s.ChannelID, toUnix(s.JoinTime), toUnix(s.LeaveTime),
	)
	if err != nil {
		return 0, wrapWriteErr("Insert: ExecContext", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("Insert: LastInsertId: %w", err)
	}
	s.ID = id
	return id, nil
}

// CloseOpenSessions closes the user's open sessions in the guild at the given
// instant. Sessions that would close with zero length are removed, since a
// zero-length row is indistinguishable from an open one.
func (repo *VoiceSessionRepo) CloseOpenSessions(ctx context.Context, userID, guildID string, at time.Time) (int64, error) {
	const closeQuery = `
UPDATE voice_sessions
SET leave_time = ?
WHERE user_id = ? AND guild_id = ? AND leave_time = join_time AND join_time < ?`
	const dropQuery = `
DELETE FROM voice_sessions
WHERE user_id = ? AND guild_id = ? AND leave_time = join_time`

	ts := toUnix(at)
	res, err := repo.db.ExecContext(ctx, closeQuery, ts, userID, guildID, ts)
	if err != nil {
		return 0, fmt.Errorf("CloseOpenSessions: ExecContext: %w", err)
	}
	closed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CloseOpenSessions: RowsAffected: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, dropQuery, userID, guildID); err != nil {
		return closed, fmt.Errorf("CloseOpenSessions: drop empty: %w", err)
	}
	return closed, nil
}

func (repo *VoiceSessionRepo) FindActiveSessions(ctx context.Context) ([]*entity.VoiceSession, error) {
	const query = `
SELECT id, user_id, guild_id, channel_id, join_time, leave_time
FROM voice_sessions
WHERE leave_time = join_time
ORDER BY id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("FindActiveSessions: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]*entity.VoiceSession, 0, 16)
	for rows.Next() {
		var (
			s           entity.VoiceSession
			join, leave int64
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.GuildID, &s.ChannelID, &join, &leave); err != nil {
			return nil, fmt.Errorf("FindActiveSessions: Scan: %w", err)
		}
		s.JoinTime, s.LeaveTime = fromUnix(join), fromUnix(leave)
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindActiveSessions: rows.Err: %w", err)
	}
	return sessions, nil
}

func (repo *VoiceSessionRepo) TouchActive(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE voice_sessions SET last_seen = ? WHERE leave_time = join_time`
	res, err := repo.db.ExecContext(ctx, query, toUnix(at))
	if err != nil {
		return 0, fmt.Errorf("TouchActive: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("TouchActive: RowsAffected: %w", err)
	}
	return n, nil
}

func (repo *VoiceSessionRepo) CloseOrphaned(ctx context.Context, fallback time.Time) (int64, error) {
	const closeQuery = `
UPDATE voice_sessions
SET leave_time = COALESCE(last_seen, ?)
WHERE leave_time = join_time AND COALESCE(last_seen, ?) > join_time`
	const dropQuery = `DELETE FROM voice_sessions WHERE leave_time = join_time`

	ts := toUnix(fallback)
	res, err := repo.db.ExecContext(ctx, closeQuery, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("CloseOrphaned: ExecContext: %w", err)
	}
	closed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CloseOrphaned: RowsAffected: %w", err)
	}
	if _, err := repo.db.ExecContext(ctx, dropQuery); err != nil {
		return closed, fmt.Errorf("CloseOrphaned: drop empty: %w", err)
	}
	return closed, nil
}

func (repo *VoiceSessionRepo) Leaderboard(ctx context.Context, q repository.LeaderboardQuery) ([]entity.LeaderboardEntry, error) {
	const query = spansCTE + `
SELECT user_id, SUM(end_time - join_time) AS total
FROM spans
GROUP BY user_id
ORDER BY total DESC, user_id ASC
LIMIT ? OFFSET ?`
	args := append(spanArgs(q.GuildID, q.Range, q.Now), q.Limit, q.Offset)
	return repo.queryEntries(ctx, "Leaderboard", query, args...)
}

// PartnerLeaderboard ranks the users who shared a channel with the target by
// the total overlapping time.
func (repo *VoiceSessionRepo) PartnerLeaderboard(ctx context.Context, q repository.LeaderboardQuery, targetUserID string) ([]entity.LeaderboardEntry, error) {
	const query = spansCTE + `
SELECT o.user_id, SUM(MIN(o.end_time, t.end_time) - MAX(o.join_time, t.join_time)) AS total
FROM spans t
JOIN spans o
  ON o.channel_id = t.channel_id
 AND o.user_id <> t.user_id
 AND o.join_time < t.end_time
 AND t.join_time < o.end_time
WHERE t.user_id = ?
GROUP BY o.user_id
ORDER BY total DESC, o.user_id ASC
LIMIT ? OFFSET ?`
	args := append(spanArgs(q.GuildID, q.Range, q.Now), targetUserID, q.Limit, q.Offset)
	return repo.queryEntries(ctx, "PartnerLeaderboard", query, args...)
}

func (repo *VoiceSessionRepo) queryEntries(ctx context.Context, op, query string, args ...any) ([]entity.LeaderboardEntry, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: QueryContext: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]entity.LeaderboardEntry, 0, 10)
	for rows.Next() {
		var e entity.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.TotalSeconds); err != nil {
			return nil, fmt.Errorf("%s: Scan: %w", op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows.Err: %w", op, err)
	}
	return entries, nil
}

func (repo *VoiceSessionRepo) UserDailyActivity(ctx context.Context, userID, guildID string, r entity.TimeRange, now time.Time) ([]entity.DailyActivity, error) {
	const query = spansCTE + `
SELECT date(join_time, 'unixepoch') AS day, SUM(end_time - join_time) AS total
FROM spans
WHERE user_id = ?
GROUP BY day
ORDER BY day ASC`
	args := append(spanArgs(guildID, r, now), userID)
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("UserDailyActivity: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.DailyActivity, 0, 31)
	for rows.Next() {
		var d entity.DailyActivity
		if err := rows.Scan(&d.Day, &d.TotalSeconds); err != nil {
			return nil, fmt.Errorf("UserDailyActivity: Scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("UserDailyActivity: rows.Err: %w", err)
	}
	return out, nil
}

func (repo *VoiceSessionRepo) GuildDailyStats(ctx context.Context, guildID string, r entity.TimeRange, stat entity.StatType, now time.Time) ([]entity.DailyStat, error) {
	var query string
	switch stat {
	case entity.StatTotalTime:
		query = spansCTE + `
SELECT date(join_time, 'unixepoch') AS day, SUM(end_time - join_time)
FROM spans
GROUP BY day
ORDER BY day ASC`
	case entity.StatAverageTime:
		query = spansCTE + `
SELECT day, CAST(AVG(total) AS INTEGER)
FROM (
    SELECT date(join_time, 'unixepoch') AS day, user_id, SUM(end_time - join_time) AS total
    FROM spans
    GROUP BY day, user_id
)
GROUP BY day
ORDER BY day ASC`
	case entity.StatActiveUserCount:
		query = spansCTE + `
SELECT date(join_time, 'unixepoch') AS day, COUNT(DISTINCT user_id)
FROM spans
GROUP BY day
ORDER BY day ASC`
	default:
		return nil, fmt.Errorf("GuildDailyStats: unsupported stat type %s", stat)
	}

	rows, err := repo.db.QueryContext(ctx, query, spanArgs(guildID, r, now)...)
	if err != nil {
		return nil, fmt.Errorf("GuildDailyStats: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]entity.DailyStat, 0, 31)
	for rows.Next() {
		var d entity.DailyStat
		if err := rows.Scan(&d.Day, &d.Value); err != nil {
			return nil, fmt.Errorf("GuildDailyStats: Scan: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GuildDailyStats: rows.Err: %w", err)
	}
	return out, nil
}
