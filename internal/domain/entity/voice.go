package entity

import (
	"fmt"
	"time"
)

// VoiceSession is one contiguous voice-channel presence.
// A session is open while LeaveTime equals JoinTime.
type VoiceSession struct {
	ID        int64
	UserID    string
	GuildID   string
	ChannelID string
	JoinTime  time.Time
	LeaveTime time.Time
}

// IsOpen reports whether the user is still in the channel.
func (s *VoiceSession) IsOpen() bool {
	return s.LeaveTime.Equal(s.JoinTime)
}

// Duration returns the time spent in the channel. Open sessions count up to now.
func (s *VoiceSession) Duration(now time.Time) time.Duration {
	end := s.LeaveTime
	if s.IsOpen() {
		end = now
	}
	if end.Before(s.JoinTime) {
		return 0
	}
	return end.Sub(s.JoinTime)
}

// TimeRange bounds voice queries by join time. A nil bound is open-ended.
type TimeRange struct {
	Since *time.Time
	Until *time.Time
}

// AllTime is the unbounded range.
var AllTime = TimeRange{}

// Contains reports whether t falls inside the range, bounds inclusive.
func (r TimeRange) Contains(t time.Time) bool {
	if r.Since != nil && t.Before(*r.Since) {
		return false
	}
	if r.Until != nil && t.After(*r.Until) {
		return false
	}
	return true
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	UserID       string
	TotalSeconds int64
}

// Total returns the accumulated time as a Duration.
func (e LeaderboardEntry) Total() time.Duration {
	return time.Duration(e.TotalSeconds) * time.Second
}

// DailyActivity is a per-day bucket of voice time for one user.
type DailyActivity struct {
	Day          string // YYYY-MM-DD in UTC
	TotalSeconds int64
}

// StatType selects the aggregate computed by guild daily statistics.
type StatType int

const (
	StatTotalTime StatType = iota
	StatAverageTime
	StatActiveUserCount
)

// String implements fmt.Stringer.
func (t StatType) String() string {
	switch t {
	case StatTotalTime:
		return "total_time"
	case StatAverageTime:
		return "average_time"
	case StatActiveUserCount:
		return "active_user_count"
	default:
		return fmt.Sprintf("stat_type(%d)", int(t))
	}
}

// DailyStat is one per-day aggregate for a guild. Value is seconds for the
// time stats and a user count for StatActiveUserCount.
type DailyStat struct {
	Day   string
	Value int64
}
