package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/repository"
)

// activeSession is an open session as tracked in memory, keyed by the
// gateway session id.
type activeSession struct {
	UserID    string
	GuildID   string
	ChannelID string
	JoinTime  time.Time
}

// Tracker records voice sessions from voice-state transitions.
// Transitions are serialised; the tracker must receive them in gateway order.
type Tracker struct {
	voice    repository.VoiceSessionRepository
	settings repository.ServerSettingsRepository
	now      func() time.Time

	mu     sync.Mutex
	active map[string]activeSession

	disabledMu sync.RWMutex
	disabled   map[string]struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now. Tests use it to script transitions.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker and loads the guilds that disabled voice
// tracking.
func NewTracker(ctx context.Context, repos repository.Repositories, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		voice:    repos.Voice,
		settings: repos.Settings,
		now:      time.Now,
		active:   make(map[string]activeSession),
		disabled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	guildIDs, err := t.settings.ListGuildIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load voice settings: %w", err)
	}
	for _, id := range guildIDs {
		s, err := t.settings.Select(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load voice settings for %s: %w", id, err)
		}
		if s != nil && !s.VoiceEnabled() {
			t.disabled[id] = struct{}{}
		}
	}
	return t, nil
}

// Name implements the event bus subscriber contract.
func (t *Tracker) Name() string { return "voice-tracker" }

// Enabled reports whether voice tracking is on for the guild.
func (t *Tracker) Enabled(guildID string) bool {
	t.disabledMu.RLock()
	defer t.disabledMu.RUnlock()
	_, off := t.disabled[guildID]
	return !off
}

// ApplySettings refreshes the enabled cache after a guild's settings changed.
func (t *Tracker) ApplySettings(_ context.Context, e event.SettingsUpdated) error {
	t.disabledMu.Lock()
	defer t.disabledMu.Unlock()
	if e.Settings != nil && !e.Settings.VoiceEnabled() {
		t.disabled[e.GuildID] = struct{}{}
	} else {
		delete(t.disabled, e.GuildID)
	}
	return nil
}

// ActiveCount returns the number of sessions tracked in memory.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Handle applies one voice-state transition:
//   - join opens a session
//   - move closes the open session and opens one in the new channel
//   - leave closes the open session
//
// Bots, disabled guilds and updates that keep the channel (mute, deafen)
// are ignored.
func (t *Tracker) Handle(ctx context.Context, e event.VoiceState) error {
	if e.New.Bot {
		return nil
	}
	guildID := e.New.GuildID
	if guildID == "" && e.Old != nil {
		guildID = e.Old.GuildID
	}
	if guildID == "" {
		return ErrMissingGuild
	}
	if !t.Enabled(guildID) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	logger := logging.FromContext(ctx).With(
		slog.String("user_id", e.New.UserID),
		slog.String("guild_id", guildID))
	now := t.now().UTC()

	// the gateway may not know the previous state; fall back to what we track
	oldChannel := ""
	if e.Old.InChannel() {
		oldChannel = e.Old.ChannelID
	} else if s, ok := t.active[e.New.SessionID]; ok {
		oldChannel = s.ChannelID
	}

	switch {
	case e.New.InChannel() && oldChannel == e.New.ChannelID:
		return nil
	case e.New.InChannel():
		if oldChannel != "" {
			logger.Debug("voice move", slog.String("from", oldChannel), slog.String("to", e.New.ChannelID))
		} else {
			logger.Debug("voice join", slog.String("channel_id", e.New.ChannelID))
		}
		if err := t.closeLocked(ctx, e.New.UserID, guildID, now); err != nil {
			return err
		}
		return t.openLocked(ctx, e.New.SessionID, e.New.UserID, guildID, e.New.ChannelID, now)
	default:
		// leave, or an unknown old state with no channel now
		logger.Debug("voice leave", slog.String("channel_id", oldChannel))
		return t.closeLocked(ctx, e.New.UserID, guildID, now)
	}
}

// Reconcile opens sessions for users found in voice channels that are not
// tracked yet, typically after a restart. Members of disabled guilds and
// bots are skipped. It returns the number of sessions opened.
func (t *Tracker) Reconcile(ctx context.Context, members []event.VoiceMember) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	opened := 0
	var errs []error
	for _, m := range members {
		if m.Bot || !m.InChannel() || m.GuildID == "" || !t.Enabled(m.GuildID) {
			continue
		}
		if s, ok := t.active[m.SessionID]; ok && s.ChannelID == m.ChannelID {
			continue
		}
		if err := t.closeLocked(ctx, m.UserID, m.GuildID, now); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := t.openLocked(ctx, m.SessionID, m.UserID, m.GuildID, m.ChannelID, now); err != nil {
			errs = append(errs, err)
			continue
		}
		opened++
	}
	metrics.SetVoiceActiveSessions(len(t.active))
	logging.FromContext(ctx).Info("voice reconcile complete",
		slog.Int("members", len(members)),
		slog.Int("opened", opened),
		slog.Int("tracked", len(t.active)))
	return opened, errors.Join(errs...)
}

func (t *Tracker) openLocked(ctx context.Context, sessionID, userID, guildID, channelID string, now time.Time) error {
	s := &entity.VoiceSession{
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
		JoinTime:  now,
		LeaveTime: now,
	}
	if _, err := t.voice.Insert(ctx, s); err != nil && !errors.Is(err, repository.ErrUniqueViolation) {
		return fmt.Errorf("open voice session: %w", err)
	}
	t.active[sessionID] = activeSession{UserID: userID, GuildID: guildID, ChannelID: channelID, JoinTime: now}
	metrics.RecordVoiceSessionOpened()
	return nil
}

// closeLocked closes every open session of the user in the guild, in the
// store and in memory.
func (t *Tracker) closeLocked(ctx context.Context, userID, guildID string, now time.Time) error {
	tracked := false
	for id, s := range t.active {
		if s.UserID == userID && s.GuildID == guildID {
			delete(t.active, id)
			tracked = true
		}
	}

	closed, err := t.voice.CloseOpenSessions(ctx, userID, guildID, now)
	if err != nil {
		return fmt.Errorf("close voice session: %w", err)
	}
	if tracked {
		metrics.RecordVoiceSessionClosed(closed == 0)
	}
	return nil
}

// Now returns the tracker's clock reading. Queries use it so open sessions
// are measured consistently with transitions.
func (t *Tracker) Now() time.Time { return t.now().UTC() }
