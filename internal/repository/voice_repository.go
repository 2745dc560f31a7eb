package repository

import (
	"context"
	"time"

	"seriesbell/internal/domain/entity"
)

// VoiceSessionRepository persists voice presence and answers aggregate queries.
// now is passed explicitly so that open sessions are measured against a single instant.
type VoiceSessionRepository interface {
	Insert(ctx context.Context, s *entity.VoiceSession) (int64, error)
	// CloseOpenSessions sets leave_time on every open session of the user in the guild.
	CloseOpenSessions(ctx context.Context, userID, guildID string, at time.Time) (int64, error)
	FindActiveSessions(ctx context.Context) ([]*entity.VoiceSession, error)
	// TouchActive records a liveness timestamp on all open sessions.
	TouchActive(ctx context.Context, at time.Time) (int64, error)
	// CloseOrphaned closes open sessions at their last liveness timestamp, or
	// at fallback when none was recorded.
	CloseOrphaned(ctx context.Context, fallback time.Time) (int64, error)

	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]entity.LeaderboardEntry, error)
	PartnerLeaderboard(ctx context.Context, q LeaderboardQuery, targetUserID string) ([]entity.LeaderboardEntry, error)
	UserDailyActivity(ctx context.Context, userID, guildID string, r entity.TimeRange, now time.Time) ([]entity.DailyActivity, error)
	GuildDailyStats(ctx context.Context, guildID string, r entity.TimeRange, stat entity.StatType, now time.Time) ([]entity.DailyStat, error)
}

// LeaderboardQuery filters and pages a leaderboard.
type LeaderboardQuery struct {
	GuildID string
	Range   entity.TimeRange
	Limit   int
	Offset  int
	Now     time.Time
}

// MetaRepository stores small key/value records such as the schema version.
type MetaRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
