// Package voice owns the per-guild voice sessions: at most one live stream
// per guild, started and stopped by commands or torn down when the last
// listener leaves.
package voice

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoVoiceChannel   = errors.New("member is not in a voice channel")
	ErrAlreadyInChannel = errors.New("bot is already in this voice channel")
	ErrSessionActive    = errors.New("a stream is already active in this guild")
	ErrNoActiveSession  = errors.New("no active stream in this voice channel")
)

// TransportError is a failed voice connect, stream start or disconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("voice %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// Link is a connected voice channel.
type Link interface {
	// Frames accepts encoded opus frames.
	Frames() chan<- []byte
	Speaking(on bool) error
	Disconnect(ctx context.Context) error
}

// Transport is the running audio feed bound to a Link.
type Transport interface {
	// Stop ends playback. It is safe to call more than once.
	Stop() error
}

// Streamer attaches an audio feed to a freshly joined link. ctx only bounds
// startup; the returned Transport runs until stopped.
type Streamer interface {
	Stream(ctx context.Context, link Link) (Transport, error)
}

// Ending is implemented by transports that can end without Stop, for
// example when the source cannot be recovered.
type Ending interface {
	// Done is closed once the transport has ended for any reason.
	Done() <-chan struct{}
	// Ended reports whether it ended without Stop being called.
	Ended() bool
}

// StreamFunc adapts a function to Streamer.
type StreamFunc func(ctx context.Context, link Link) (Transport, error)

func (f StreamFunc) Stream(ctx context.Context, link Link) (Transport, error) { return f(ctx, link) }

// Gateway is what the lifecycle needs from the chat platform.
type Gateway interface {
	SelfID() string
	// UserVoiceChannel returns the channel the user is connected to, or ""
	// when the user is not in voice.
	UserVoiceChannel(guildID, userID string) (string, error)
	ChannelMembers(guildID, channelID string) ([]string, error)
	ChannelName(channelID string) string
	GuildName(guildID string) string
	JoinVoice(ctx context.Context, guildID, channelID string) (Link, error)
}

// Member identifies who issued a command.
type Member struct {
	GuildID string
	UserID  string
}

// MembershipChange is a voice-state transition of any member. Before and
// After are channel ids; "" means not connected.
type MembershipChange struct {
	GuildID string
	UserID  string
	Before  string
	After   string
}

// Session is one live stream. It is never mutated after registration.
type Session struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	Link        Link
	Transport   Transport
	Members     []string
	StartedAt   time.Time
}
