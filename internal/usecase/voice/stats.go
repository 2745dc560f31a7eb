package voice

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/repository"
)

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardOpts selects one page of a guild leaderboard.
type LeaderboardOpts struct {
	GuildID string
	Range   entity.TimeRange
	Limit   int // DefaultLeaderboardLimit when <= 0, capped at MaxLeaderboardLimit
	Offset  int
}

// UserRank is a user's 1-based position on a leaderboard.
type UserRank struct {
	Rank  int
	Entry entity.LeaderboardEntry
	Total int // ranked users
}

// GuildSummary is the per-day statistics of a guild over one range.
type GuildSummary struct {
	TotalTime   []entity.DailyStat
	AverageTime []entity.DailyStat
	ActiveUsers []entity.DailyStat
}

func (t *Tracker) query(opts LeaderboardOpts) (repository.LeaderboardQuery, error) {
	if err := checkRange(opts.Range); err != nil {
		return repository.LeaderboardQuery{}, err
	}
	limit := opts.Limit
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}
	return repository.LeaderboardQuery{
		GuildID: opts.GuildID,
		Range:   opts.Range,
		Limit:   limit,
		Offset:  max(opts.Offset, 0),
		Now:     t.Now(),
	}, nil
}

func checkRange(r entity.TimeRange) error {
	if r.Since != nil && r.Until != nil && r.Since.After(*r.Until) {
		return fmt.Errorf("%w: since %s is after until %s", ErrInvalidRange,
			r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
	}
	return nil
}

// GetLeaderboard ranks users by total voice time over sessions that joined
// inside the range. Open sessions count up to now.
func (t *Tracker) GetLeaderboard(ctx context.Context, opts LeaderboardOpts) ([]entity.LeaderboardEntry, error) {
	q, err := t.query(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	entries, err := t.voice.Leaderboard(ctx, q)
	metrics.RecordDBQuery("voice_leaderboard", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

// GetPartnerLeaderboard ranks the users who shared a channel with target by
// overlapping time.
func (t *Tracker) GetPartnerLeaderboard(ctx context.Context, opts LeaderboardOpts, target string) ([]entity.LeaderboardEntry, error) {
	q, err := t.query(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	entries, err := t.voice.PartnerLeaderboard(ctx, q, target)
	metrics.RecordDBQuery("voice_partner_leaderboard", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("partner leaderboard: %w", err)
	}
	return entries, nil
}

// GetUserRank finds userID on the full leaderboard. ok is false when the
// user has no voice time in the range.
func (t *Tracker) GetUserRank(ctx context.Context, opts LeaderboardOpts, userID string) (rank UserRank, ok bool, err error) {
	q, err := t.query(opts)
	if err != nil {
		return UserRank{}, false, err
	}
	q.Limit, q.Offset = math.MaxInt32, 0

	entries, err := t.voice.Leaderboard(ctx, q)
	if err != nil {
		return UserRank{}, false, fmt.Errorf("user rank: %w", err)
	}
	for i, e := range entries {
		if e.UserID == userID {
			return UserRank{Rank: i + 1, Entry: e, Total: len(entries)}, true, nil
		}
	}
	return UserRank{Total: len(entries)}, false, nil
}

// GetUserDailyActivity returns the user's voice time per UTC day.
func (t *Tracker) GetUserDailyActivity(ctx context.Context, userID, guildID string, since, until time.Time) ([]entity.DailyActivity, error) {
	r := entity.TimeRange{Since: &since, Until: &until}
	if err := checkRange(r); err != nil {
		return nil, err
	}
	out, err := t.voice.UserDailyActivity(ctx, userID, guildID, r, t.Now())
	if err != nil {
		return nil, fmt.Errorf("user daily activity: %w", err)
	}
	return out, nil
}

// GetGuildDailyStats returns one aggregate per UTC day.
func (t *Tracker) GetGuildDailyStats(ctx context.Context, guildID string, since, until time.Time, stat entity.StatType) ([]entity.DailyStat, error) {
	r := entity.TimeRange{Since: &since, Until: &until}
	if err := checkRange(r); err != nil {
		return nil, err
	}
	out, err := t.voice.GuildDailyStats(ctx, guildID, r, stat, t.Now())
	if err != nil {
		return nil, fmt.Errorf("guild daily stats (%s): %w", stat, err)
	}
	return out, nil
}

// GetGuildSummary runs the three daily statistics concurrently.
func (t *Tracker) GetGuildSummary(ctx context.Context, guildID string, since, until time.Time) (GuildSummary, error) {
	var summary GuildSummary
	targets := map[entity.StatType]*[]entity.DailyStat{
		entity.StatTotalTime:       &summary.TotalTime,
		entity.StatAverageTime:     &summary.AverageTime,
		entity.StatActiveUserCount: &summary.ActiveUsers,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for stat, dst := range targets {
		eg.Go(func() error {
			out, err := t.GetGuildDailyStats(egCtx, guildID, since, until, stat)
			if err != nil {
				return err
			}
			*dst = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return GuildSummary{}, err
	}
	return summary, nil
}
