package voice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"beatbot/internal/logging"
	"beatbot/pkg/retrylimit"
)

// Lifecycle starts and stops voice sessions. Every decision that reads the
// registry and then mutates it runs under the guild's lock, so concurrent
// commands and membership events for one guild resolve to a single
// transition.
type Lifecycle struct {
	gw       Gateway
	reg      *Registry
	streamer Streamer

	joinTimeout     time.Duration
	disconnectRetry retrylimit.RetryConfig
	now             func() time.Time
	log             zerolog.Logger
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithJoinTimeout bounds each voice connect and disconnect handshake.
func WithJoinTimeout(d time.Duration) Option {
	return func(l *Lifecycle) { l.joinTimeout = d }
}

// WithDisconnectRetry sets the backoff used when a disconnect fails.
func WithDisconnectRetry(cfg retrylimit.RetryConfig) Option {
	return func(l *Lifecycle) { l.disconnectRetry = cfg }
}

// WithLogger replaces the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Lifecycle) { l.log = log }
}

func NewLifecycle(gw Gateway, reg *Registry, streamer Streamer, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		gw:              gw,
		reg:             reg,
		streamer:        streamer,
		joinTimeout:     10 * time.Second,
		disconnectRetry: retrylimit.DefaultRetryConfig(),
		now:             time.Now,
		log:             logging.Component("voice"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Sessions lists the live sessions.
func (l *Lifecycle) Sessions() []*Session {
	return l.reg.Sessions()
}

// Start joins the member's voice channel and starts streaming there.
func (l *Lifecycle) Start(ctx context.Context, m Member) (string, error) {
	channelID, err := l.memberChannel(m)
	if err != nil {
		return "", err
	}

	unlock, err := l.reg.Lock(ctx, m.GuildID)
	if err != nil {
		return "", err
	}
	defer unlock()

	members, err := l.gw.ChannelMembers(m.GuildID, channelID)
	if err != nil {
		return "", fmt.Errorf("list channel members: %w", err)
	}
	if slices.Contains(members, l.gw.SelfID()) {
		return "", ErrAlreadyInChannel
	}
	if l.reg.Get(m.GuildID) != nil {
		return "", ErrSessionActive
	}

	joinCtx, cancel := context.WithTimeout(ctx, l.joinTimeout)
	link, err := l.gw.JoinVoice(joinCtx, m.GuildID, channelID)
	cancel()
	if err != nil {
		return "", &TransportError{Op: "join", Err: err}
	}

	transport, err := l.streamer.Stream(ctx, link)
	if err != nil {
		if derr := l.disconnect(ctx, link); derr != nil {
			l.log.Warn().Err(derr).Str("guild", m.GuildID).Msg("disconnect after failed stream start")
		}
		return "", &TransportError{Op: "stream", Err: err}
	}

	s := &Session{
		GuildID:     m.GuildID,
		ChannelID:   channelID,
		ChannelName: l.gw.ChannelName(channelID),
		Link:        link,
		Transport:   transport,
		Members:     members,
		StartedAt:   l.now(),
	}
	if err := l.reg.Insert(s); err != nil {
		// Unreachable while the guild lock is held; release what was built.
		_ = transport.Stop()
		_ = l.disconnect(ctx, link)
		return "", err
	}

	if e, ok := transport.(Ending); ok {
		go l.watch(context.WithoutCancel(ctx), s, e)
	}

	l.log.Info().
		Str("guild", m.GuildID).
		Str("guild_name", l.gw.GuildName(m.GuildID)).
		Str("channel", channelID).
		Str("channel_name", s.ChannelName).
		Str("user", m.UserID).
		Msg("stream started")

	return fmt.Sprintf("Streaming in **%s**.", s.ChannelName), nil
}

// Stop ends the stream in the member's voice channel. If the session the
// member could see was torn down concurrently before Stop got the guild lock
// and nothing replaced it, Stop reports success without doing anything. A
// fresh session started in the same channel meanwhile is stopped.
func (l *Lifecycle) Stop(ctx context.Context, m Member) (string, error) {
	channelID, err := l.memberChannel(m)
	if err != nil {
		return "", err
	}

	observed := l.reg.Get(m.GuildID)

	unlock, err := l.reg.Lock(ctx, m.GuildID)
	if err != nil {
		return "", err
	}
	defer unlock()

	s := l.reg.Get(m.GuildID)
	if s == nil && observed != nil && observed.ChannelID == channelID {
		return fmt.Sprintf("Stream in **%s** already stopped.", observed.ChannelName), nil
	}
	if s == nil || s.ChannelID != channelID {
		return "", ErrNoActiveSession
	}

	if err := l.teardown(ctx, s, "stop command", m.UserID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stopped streaming in **%s**.", s.ChannelName), nil
}

// HandleMembershipChange tears the guild's session down when its channel has
// no listeners left, or when the bot itself left or was moved out of it.
func (l *Lifecycle) HandleMembershipChange(ctx context.Context, ch MembershipChange) {
	if ch.Before == "" || ch.Before == ch.After {
		return
	}

	unlock, err := l.reg.Lock(ctx, ch.GuildID)
	if err != nil {
		l.log.Warn().Err(err).Str("guild", ch.GuildID).Msg("membership change dropped")
		return
	}
	defer unlock()

	// A Start holding the lock when the event arrived has registered its
	// session by now, so the departure is counted against it.
	s := l.reg.Get(ch.GuildID)
	if s == nil || s.ChannelID != ch.Before {
		return
	}

	self := l.gw.SelfID()
	reason := "bot left channel"
	if ch.UserID != self {
		members, err := l.gw.ChannelMembers(ch.GuildID, ch.Before)
		if err != nil {
			l.log.Warn().Err(err).Str("guild", ch.GuildID).Msg("recount channel members")
			return
		}
		if slices.ContainsFunc(members, func(id string) bool { return id != self }) {
			return
		}
		reason = "no listeners left"
	}

	if err := l.teardown(ctx, s, reason, ch.UserID); err != nil {
		l.log.Error().Err(err).Str("guild", ch.GuildID).Msg("autonomous stop")
	}
}

// watch tears s down when its transport ends on its own, so a dead stream
// does not keep the guild busy.
func (l *Lifecycle) watch(ctx context.Context, s *Session, e Ending) {
	<-e.Done()
	if !e.Ended() {
		return
	}

	unlock, err := l.reg.Lock(ctx, s.GuildID)
	if err != nil {
		return
	}
	defer unlock()

	if l.reg.Get(s.GuildID) != s {
		return
	}
	if err := l.teardown(ctx, s, "stream ended", ""); err != nil {
		l.log.Error().Err(err).Str("guild", s.GuildID).Msg("cleanup after stream ended")
	}
}

// Shutdown tears down every live session. It is called once the gateway
// stops delivering events, before the connection is closed.
func (l *Lifecycle) Shutdown(ctx context.Context) {
	for _, s := range l.reg.Sessions() {
		unlock, err := l.reg.Lock(ctx, s.GuildID)
		if err != nil {
			l.log.Warn().Err(err).Str("guild", s.GuildID).Msg("session left running at shutdown")
			continue
		}
		if l.reg.Get(s.GuildID) == s {
			if err := l.teardown(ctx, s, "shutdown", ""); err != nil {
				l.log.Warn().Err(err).Str("guild", s.GuildID).Msg("shutdown teardown")
			}
		}
		unlock()
	}
}

// teardown stops playback, disconnects and then removes the registry entry.
// The caller holds the guild lock. The entry is removed even when the
// disconnect keeps failing, so the guild can start again.
func (l *Lifecycle) teardown(ctx context.Context, s *Session, reason, userID string) error {
	if s.Transport != nil {
		if err := s.Transport.Stop(); err != nil {
			l.log.Warn().Err(err).Str("guild", s.GuildID).Msg("stop transport")
		}
	}

	derr := l.disconnect(ctx, s.Link)

	if l.reg.Get(s.GuildID) == s {
		l.reg.Remove(s.GuildID)
	}

	ev := l.log.Info()
	if derr != nil {
		ev = l.log.Warn().Err(derr)
	}
	ev.Str("guild", s.GuildID).
		Str("guild_name", l.gw.GuildName(s.GuildID)).
		Str("channel", s.ChannelID).
		Str("channel_name", s.ChannelName).
		Str("user", userID).
		Str("reason", reason).
		Dur("uptime", l.now().Sub(s.StartedAt)).
		Msg("stream stopped")

	if derr != nil {
		return &TransportError{Op: "disconnect", Err: derr}
	}
	return nil
}

// disconnect retries the leave handshake. It outlives the caller's
// cancellation; each attempt is bounded by the join timeout.
func (l *Lifecycle) disconnect(ctx context.Context, link Link) error {
	if link == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	cfg := l.disconnectRetry
	cfg.OnRetry = func(attempt int, err error) {
		l.log.Debug().Err(err).Int("attempt", attempt).Msg("voice disconnect failed, retrying")
	}
	return retrylimit.WithRetryConfig(ctx, func() error {
		dctx, cancel := context.WithTimeout(ctx, l.joinTimeout)
		defer cancel()
		return link.Disconnect(dctx)
	}, nil, cfg)
}

func (l *Lifecycle) memberChannel(m Member) (string, error) {
	channelID, err := l.gw.UserVoiceChannel(m.GuildID, m.UserID)
	if err != nil && !errors.Is(err, ErrNoVoiceChannel) {
		return "", fmt.Errorf("look up voice state: %w", err)
	}
	if channelID == "" {
		return "", ErrNoVoiceChannel
	}
	return channelID, nil
}
