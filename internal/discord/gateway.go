package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"beatbot/internal/voice"
)

var _ voice.Gateway = (*Bot)(nil)

// SelfID is the bot's user ID, empty before the first Ready.
func (b *Bot) SelfID() string {
	st := b.dg.State
	st.RLock()
	defer st.RUnlock()
	if st.User == nil {
		return ""
	}
	return st.User.ID
}

// UserVoiceChannel returns the voice channel the user sits in, or "".
func (b *Bot) UserVoiceChannel(guildID, userID string) (string, error) {
	vs, err := b.dg.State.VoiceState(guildID, userID)
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vs.ChannelID, nil
}

// ChannelMembers lists the users whose voice state points at the channel,
// the bot included.
func (b *Bot) ChannelMembers(guildID, channelID string) ([]string, error) {
	g, err := b.dg.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("guild %s: %w", guildID, err)
	}

	b.dg.State.RLock()
	defer b.dg.State.RUnlock()
	var ids []string
	for _, vs := range g.VoiceStates {
		if vs.ChannelID == channelID {
			ids = append(ids, vs.UserID)
		}
	}
	return ids, nil
}

func (b *Bot) ChannelName(channelID string) string {
	if ch, err := b.dg.State.Channel(channelID); err == nil && ch.Name != "" {
		return ch.Name
	}
	return channelID
}

func (b *Bot) GuildName(guildID string) string {
	if g, err := b.dg.State.Guild(guildID); err == nil && g.Name != "" {
		return g.Name
	}
	return guildID
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// JoinVoice connects to a voice channel, self-deafened. The handshake keeps
// running when ctx ends first; a connection it produces late is dropped.
func (b *Bot) JoinVoice(ctx context.Context, guildID, channelID string) (voice.Link, error) {
	done := make(chan joinResult, 1)
	go func() {
		vc, err := b.dg.ChannelVoiceJoin(guildID, channelID, false, true)
		done <- joinResult{vc: vc, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if r.vc != nil {
				_ = r.vc.Disconnect()
			}
			return nil, r.err
		}
		return &voiceLink{vc: r.vc}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

// voiceLink adapts a discordgo voice connection to voice.Link.
type voiceLink struct {
	vc *discordgo.VoiceConnection
}

func (l *voiceLink) Frames() chan<- []byte { return l.vc.OpusSend }

func (l *voiceLink) Speaking(on bool) error { return l.vc.Speaking(on) }

func (l *voiceLink) Disconnect(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- l.vc.Disconnect() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
