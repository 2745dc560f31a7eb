// Package discord connects the bot to the Discord gateway and turns gateway
// events into domain events.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"seriesbell/internal/domain/event"
	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/metrics"
)

// Intents are the gateway intents the bot identifies with. Voice states are
// needed for session tracking; guilds deliver the voice states of every
// guild on connect.
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("discord bot token is not set")

// Publisher delivers domain events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event any) int
}

// Reconciler brings tracked voice sessions in line with a gateway snapshot.
type Reconciler interface {
	Reconcile(ctx context.Context, members []event.VoiceMember) (int, error)
}

// NewSession creates a bot session with the state cache tracking voice.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackVoice = true
	return s, nil
}

// Gateway owns the websocket connection. Voice-state updates are published
// as event.VoiceState; every guild snapshot received on connect is handed to
// the reconciler.
type Gateway struct {
	session *discordgo.Session
	events  Publisher
	voice   Reconciler
	logger  *slog.Logger

	ctx   context.Context
	ready atomic.Bool

	mu       sync.Mutex
	removers []func()
}

// New creates a gateway over session.
func New(session *discordgo.Session, events Publisher, voice Reconciler, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		session: session,
		events:  events,
		voice:   voice,
		logger:  logger,
		ctx:     context.Background(),
	}
}

// Open registers the event handlers and connects. ctx is the parent of
// every handler invocation.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.removers = append(g.removers,
		g.session.AddHandler(g.onReady),
		g.session.AddHandler(g.onGuildCreate),
		g.session.AddHandler(g.onVoiceStateUpdate),
		g.session.AddHandler(g.onDisconnect),
	)
	g.mu.Unlock()

	if err := g.session.Open(); err != nil {
		g.removeHandlers()
		return fmt.Errorf("open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects and unregisters the handlers.
func (g *Gateway) Close() error {
	g.removeHandlers()
	g.ready.Store(false)
	metrics.SetGatewayConnected(false)
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

// Ready reports whether the session has completed its handshake.
func (g *Gateway) Ready() bool { return g.ready.Load() }

func (g *Gateway) removeHandlers() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, remove := range g.removers {
		remove()
	}
	g.removers = nil
}

func (g *Gateway) handlerContext() (context.Context, *slog.Logger) {
	g.mu.Lock()
	parent := g.ctx
	g.mu.Unlock()
	return logging.WithCorrelationID(parent, g.logger)
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	metrics.RecordGatewayEvent("ready")
	g.ready.Store(true)
	metrics.SetGatewayConnected(true)

	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	g.logger.Info("discord gateway ready",
		slog.String("user", user),
		slog.Int("guilds", len(r.Guilds)))
}

func (g *Gateway) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	metrics.RecordGatewayEvent("disconnect")
	g.ready.Store(false)
	metrics.SetGatewayConnected(false)
	g.logger.Warn("discord gateway disconnected")
}

func (g *Gateway) onGuildCreate(s *discordgo.Session, gc *discordgo.GuildCreate) {
	metrics.RecordGatewayEvent("guild_create")
	if gc.Guild == nil || gc.Unavailable {
		return
	}
	ctx, logger := g.handlerContext()
	logger = logger.With(slog.String("guild_id", gc.ID))

	members := make([]event.VoiceMember, 0, len(gc.VoiceStates))
	for _, vs := range gc.VoiceStates {
		if vs == nil {
			continue
		}
		m := toMember(vs, gc.ID)
		m.Bot = isBot(s, vs, m.GuildID)
		members = append(members, m)
	}
	if _, err := g.voice.Reconcile(ctx, members); err != nil {
		logger.Error("voice reconcile failed", slog.Any("error", err))
	}
}

func (g *Gateway) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	metrics.RecordGatewayEvent("voice_state_update")
	if v.VoiceState == nil {
		return
	}
	ctx, _ := g.handlerContext()
	g.events.Publish(ctx, voiceState(v, isBot(s, v.VoiceState, v.GuildID)))
}

// voiceState converts a gateway update. Old stays nil when the state cache
// had not seen the user before.
func voiceState(v *discordgo.VoiceStateUpdate, bot bool) event.VoiceState {
	e := event.VoiceState{New: toMember(v.VoiceState, v.GuildID)}
	e.New.Bot = bot
	if v.BeforeUpdate != nil {
		old := toMember(v.BeforeUpdate, v.GuildID)
		old.Bot = bot
		e.Old = &old
	}
	return e
}

func toMember(vs *discordgo.VoiceState, guildID string) event.VoiceMember {
	if vs.GuildID != "" {
		guildID = vs.GuildID
	}
	return event.VoiceMember{
		UserID:    vs.UserID,
		GuildID:   guildID,
		ChannelID: vs.ChannelID,
		SessionID: vs.SessionID,
	}
}

// isBot looks at the member attached to the voice state, then the state
// cache. The bot's own user always counts as a bot.
func isBot(s *discordgo.Session, vs *discordgo.VoiceState, guildID string) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if s == nil || s.State == nil {
		return false
	}
	if s.State.User != nil && s.State.User.ID == vs.UserID {
		return true
	}
	if m, err := s.State.Member(guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}
