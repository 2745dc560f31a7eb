package voice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/usecase/voice"
)

// seed stores closed sessions for the stats tests:
//
//	A  C1  t0      .. t0+600
//	B  C1  t0+300  .. t0+900
//	C  C2  t0      .. t0+100
//	A  C1  t0+24h  .. t0+24h+60
//	D  C1  t0      .. t0+1000 (another guild)
func seed(t *testing.T, e *env) {
	t.Helper()
	ctx := context.Background()
	insert := func(user, guild, channel string, join time.Time, secs int) {
		_, err := e.store.Repositories().Voice.Insert(ctx, &entity.VoiceSession{
			UserID: user, GuildID: guild, ChannelID: channel,
			JoinTime: join, LeaveTime: join.Add(time.Duration(secs) * time.Second),
		})
		require.NoError(t, err)
	}
	insert("A", guildG, "C1", t0, 600)
	insert("B", guildG, "C1", t0.Add(300*time.Second), 600)
	insert("C", guildG, "C2", t0, 100)
	insert("A", guildG, "C1", t0.Add(24*time.Hour), 60)
	insert("D", "901", "C1", t0, 1000)
	e.clock.Set(t0.Add(72 * time.Hour))
}

func TestGetLeaderboard(t *testing.T) {
	e := newEnv(t)
	seed(t, e)
	ctx := context.Background()

	got, err := e.tracker.GetLeaderboard(ctx, voice.LeaderboardOpts{GuildID: guildG})
	require.NoError(t, err)
	assert.Equal(t, []entity.LeaderboardEntry{
		{UserID: "A", TotalSeconds: 660},
		{UserID: "B", TotalSeconds: 600},
		{UserID: "C", TotalSeconds: 100},
	}, got)

	t.Run("paging", func(t *testing.T) {
		got, err := e.tracker.GetLeaderboard(ctx, voice.LeaderboardOpts{GuildID: guildG, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []entity.LeaderboardEntry{{UserID: "B", TotalSeconds: 600}}, got)
	})

	t.Run("range by join time", func(t *testing.T) {
		since := t0.Add(12 * time.Hour)
		got, err := e.tracker.GetLeaderboard(ctx, voice.LeaderboardOpts{GuildID: guildG, Range: entity.TimeRange{Since: &since}})
		require.NoError(t, err)
		assert.Equal(t, []entity.LeaderboardEntry{{UserID: "A", TotalSeconds: 60}}, got)
	})

	t.Run("invalid range", func(t *testing.T) {
		since, until := t0, t0.Add(-time.Hour)
		_, err := e.tracker.GetLeaderboard(ctx, voice.LeaderboardOpts{GuildID: guildG, Range: entity.TimeRange{Since: &since, Until: &until}})
		assert.ErrorIs(t, err, voice.ErrInvalidRange)
	})
}

func TestGetLeaderboard_OpenSessionCountsToNow(t *testing.T) {
	e := newEnv(t)

	e.at(t, 0, nil, member("7", "C"))
	e.clock.Set(t0.Add(50 * time.Second))

	assert.Equal(t, []entity.LeaderboardEntry{{UserID: "7", TotalSeconds: 50}}, e.leaderboard(t))
}

func TestGetPartnerLeaderboard(t *testing.T) {
	e := newEnv(t)
	seed(t, e)

	got, err := e.tracker.GetPartnerLeaderboard(context.Background(), voice.LeaderboardOpts{GuildID: guildG}, "A")
	require.NoError(t, err)
	assert.Equal(t, []entity.LeaderboardEntry{{UserID: "B", TotalSeconds: 300}}, got)
}

func TestGetUserRank(t *testing.T) {
	e := newEnv(t)
	seed(t, e)
	ctx := context.Background()

	rank, ok, err := e.tracker.GetUserRank(ctx, voice.LeaderboardOpts{GuildID: guildG}, "C")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, voice.UserRank{Rank: 3, Entry: entity.LeaderboardEntry{UserID: "C", TotalSeconds: 100}, Total: 3}, rank)

	_, ok, err = e.tracker.GetUserRank(ctx, voice.LeaderboardOpts{GuildID: guildG}, "D")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserDailyActivity(t *testing.T) {
	e := newEnv(t)
	seed(t, e)

	got, err := e.tracker.GetUserDailyActivity(context.Background(), "A", guildG, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []entity.DailyActivity{
		{Day: "2024-03-01", TotalSeconds: 600},
		{Day: "2024-03-02", TotalSeconds: 60},
	}, got)

	_, err = e.tracker.GetUserDailyActivity(context.Background(), "A", guildG, t0, t0.Add(-time.Second))
	assert.ErrorIs(t, err, voice.ErrInvalidRange)
}

func TestGetGuildDailyStats(t *testing.T) {
	e := newEnv(t)
	seed(t, e)
	since, until := t0.Add(-time.Hour), t0.Add(48*time.Hour)

	tests := []struct {
		stat entity.StatType
		want []entity.DailyStat
	}{
		{entity.StatTotalTime, []entity.DailyStat{{Day: "2024-03-01", Value: 1300}, {Day: "2024-03-02", Value: 60}}},
		{entity.StatAverageTime, []entity.DailyStat{{Day: "2024-03-01", Value: 433}, {Day: "2024-03-02", Value: 60}}},
		{entity.StatActiveUserCount, []entity.DailyStat{{Day: "2024-03-01", Value: 3}, {Day: "2024-03-02", Value: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.stat.String(), func(t *testing.T) {
			got, err := e.tracker.GetGuildDailyStats(context.Background(), guildG, since, until, tt.stat)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetGuildSummary(t *testing.T) {
	e := newEnv(t)
	seed(t, e)

	got, err := e.tracker.GetGuildSummary(context.Background(), guildG, t0.Add(-time.Hour), t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got.TotalTime, 2)
	assert.Len(t, got.AverageTime, 2)
	assert.Equal(t, []entity.DailyStat{{Day: "2024-03-01", Value: 3}, {Day: "2024-03-02", Value: 1}}, got.ActiveUsers)

	_, err = e.tracker.GetGuildSummary(context.Background(), guildG, t0, t0.Add(-time.Hour))
	assert.ErrorIs(t, err, voice.ErrInvalidRange)
}
