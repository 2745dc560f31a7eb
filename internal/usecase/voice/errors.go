// Package voice turns gateway voice-state transitions into voice sessions
// and answers leaderboard and per-day statistics queries over them.
package voice

import "errors"

var (
	// ErrMissingGuild is returned for voice states outside a guild.
	ErrMissingGuild = errors.New("voice state has no guild")

	// ErrInvalidRange is returned when a query's since is after its until.
	ErrInvalidRange = errors.New("invalid time range")
)
