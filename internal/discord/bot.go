// Package discord connects the bot to the Discord gateway. Gateway callbacks
// are turned into Events and consumed by a single dispatch loop.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"beatbot/internal/command"
	"beatbot/internal/logging"
	"beatbot/internal/voice"
)

const (
	defaultHandlerTimeout = 30 * time.Second
	shutdownTimeout       = 15 * time.Second
	eventBuffer           = 64
)

// Intents are the gateway intents the bot needs: guilds and their voice
// states for the lifecycle, messages and their content for text commands.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// Sessions is the part of the voice lifecycle the dispatcher drives.
type Sessions interface {
	HandleMembershipChange(ctx context.Context, ch voice.MembershipChange)
	Shutdown(ctx context.Context)
}

// Presence is told when the gateway connection comes and goes.
type Presence interface {
	MarkReady()
	MarkLost()
}

// Handlers are the consumers of gateway events.
type Handlers struct {
	Router   *command.Router
	Slash    []*discordgo.ApplicationCommand
	Sessions Sessions
	Presence Presence
}

// Bot owns the gateway session. It also serves as the voice gateway and the
// presence publisher.
type Bot struct {
	dg  *discordgo.Session
	log zerolog.Logger

	handlerTimeout time.Duration

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	cmdMu     sync.Mutex
	cmdHashes map[string]string
}

type Option func(*Bot)

// WithHandlerTimeout bounds every message, interaction and membership handler.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bot) { b.handlerTimeout = d }
}

// New prepares a gateway session. Nothing is connected until Run.
func New(token string, opts ...Option) (*Bot, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	dg.State.TrackVoice = true
	dg.State.TrackChannels = true

	b := &Bot{
		dg:             dg,
		log:            logging.Component("discord"),
		handlerTimeout: defaultHandlerTimeout,
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
		cmdHashes:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	routeLibraryLogs(b.log)
	return b, nil
}

// Run opens the gateway and dispatches events until ctx is cancelled. On the
// way out it waits for running handlers, tears every voice session down and
// closes the connection.
func (b *Bot) Run(ctx context.Context, h Handlers) error {
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onResumed)
	b.dg.AddHandler(b.onDisconnect)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)
	b.dg.AddHandler(b.onInteractionCreate)
	b.dg.AddHandler(b.onVoiceStateUpdate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	b.loop(ctx, h)
	b.log.Info().Msg("shutdown signal received, cleaning up")

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	b.drain(sctx)
	h.Sessions.Shutdown(sctx)

	if err := b.dg.Close(); err != nil {
		return fmt.Errorf("close gateway: %w", err)
	}
	return nil
}

func (b *Bot) loop(ctx context.Context, h Handlers) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.dispatch(ctx, h, ev)
		}
	}
}

// dispatch handles one event. Connection events are handled inline so the
// presence loop sees them in order; everything else runs in its own
// goroutine.
func (b *Bot) dispatch(ctx context.Context, h Handlers, ev Event) {
	switch ev := ev.(type) {
	case ReadyEvent:
		b.log.Info().Str("user", ev.Username).Msg("gateway ready")
		h.Presence.MarkReady()
	case ResumedEvent:
		b.log.Info().Msg("gateway resumed")
		h.Presence.MarkReady()
	case DisconnectedEvent:
		b.log.Warn().Msg("gateway disconnected")
		h.Presence.MarkLost()
	case GuildEvent:
		b.spawn(ctx, "guild", func(ctx context.Context) {
			b.syncCommands(ctx, ev.GuildID, h.Slash)
		})
	case MessageEvent:
		b.spawn(ctx, "message", func(ctx context.Context) {
			b.handleMessage(ctx, h.Router, ev.Message)
		})
	case InteractionEvent:
		b.spawn(ctx, "interaction", func(ctx context.Context) {
			b.handleInteraction(ctx, h.Router, ev.Interaction)
		})
	case MembershipEvent:
		b.spawn(ctx, "membership", func(ctx context.Context) {
			h.Sessions.HandleMembershipChange(ctx, ev.Change)
		})
	}
}

func (b *Bot) spawn(ctx context.Context, kind string, fn func(context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error().Interface("panic", r).Str("handler", kind).Msg("handler panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(ctx, b.handlerTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// drain waits for running handlers, or until ctx ends.
func (b *Bot) drain(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		b.log.Warn().Msg("handlers still running at shutdown")
	}
}

func (b *Bot) push(ev Event) {
	select {
	case b.events <- ev:
	case <-b.done:
	}
}

func (b *Bot) handleMessage(ctx context.Context, router *command.Router, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.SelfID() {
		return
	}
	req := &command.Request{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		Reply:     &messageResponder{dg: b.dg, channelID: m.ChannelID},
	}
	if err := router.HandleText(ctx, req, m.Content); err != nil {
		b.log.Debug().Err(err).Str("channel", m.ChannelID).Msg("text command failed")
	}
}

func (b *Bot) handleInteraction(ctx context.Context, router *command.Router, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()

	resp := &interactionResponder{dg: b.dg, interaction: i.Interaction}
	if err := resp.Defer(ctx); err != nil {
		b.log.Warn().Err(err).Str("command", data.Name).Msg("acknowledge interaction")
		return
	}

	req := &command.Request{GuildID: i.GuildID, ChannelID: i.ChannelID, Reply: resp}
	if u := invoker(i.Interaction); u != nil {
		req.UserID = u.ID
		req.Username = u.Username
	}

	err := router.HandleSlash(ctx, req, data.Name, slashArgs(data.Options))
	switch {
	case errors.Is(err, command.ErrUnknownCommand):
		_ = resp.Text(ctx, "Unknown command.")
	case err != nil:
		b.log.Debug().Err(err).Str("command", data.Name).Msg("slash command failed")
	}
	resp.Finish(ctx)
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	name := ""
	if r.User != nil {
		name = r.User.Username
	}
	b.push(ReadyEvent{Username: name})
}

func (b *Bot) onResumed(*discordgo.Session, *discordgo.Resumed) { b.push(ResumedEvent{}) }

func (b *Bot) onDisconnect(*discordgo.Session, *discordgo.Disconnect) {
	b.push(DisconnectedEvent{})
}

func (b *Bot) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	b.push(GuildEvent{GuildID: g.ID, Name: g.Name})
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.push(MessageEvent{Message: m})
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.push(InteractionEvent{Interaction: i})
}

func (b *Bot) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	b.push(MembershipEvent{Change: membershipChange(v)})
}

// SetStatus publishes text as the bot's activity.
func (b *Bot) SetStatus(_ context.Context, text string) error {
	return b.dg.UpdateGameStatus(0, text)
}

// routeLibraryLogs sends discordgo's own log lines through zerolog.
func routeLibraryLogs(log zerolog.Logger) {
	lib := log.With().Str("source", "discordgo").Logger()
	discordgo.Logger = func(level, _ int, format string, a ...interface{}) {
		ev := lib.Debug()
		switch level {
		case discordgo.LogError:
			ev = lib.Error()
		case discordgo.LogWarning:
			ev = lib.Warn()
		case discordgo.LogInformational:
			ev = lib.Info()
		}
		ev.Msgf(format, a...)
	}
}
