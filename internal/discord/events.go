package discord

import (
	"strconv"

	"github.com/bwmarrin/discordgo"

	"beatbot/internal/voice"
)

// Event is anything the gateway hands to the dispatch loop.
type Event interface{ event() }

type MessageEvent struct{ Message *discordgo.MessageCreate }

type InteractionEvent struct{ Interaction *discordgo.InteractionCreate }

type MembershipEvent struct{ Change voice.MembershipChange }

// ReadyEvent is a fresh gateway session.
type ReadyEvent struct{ Username string }

// ResumedEvent is a gateway session picked up again after a drop.
type ResumedEvent struct{}

// DisconnectedEvent means the gateway connection went away.
type DisconnectedEvent struct{}

// GuildEvent is a guild becoming available.
type GuildEvent struct{ GuildID, Name string }

func (MessageEvent) event()      {}
func (InteractionEvent) event()  {}
func (MembershipEvent) event()   {}
func (ReadyEvent) event()        {}
func (ResumedEvent) event()      {}
func (DisconnectedEvent) event() {}
func (GuildEvent) event()        {}

// membershipChange turns a voice state update into the before/after pair the
// lifecycle reasons about.
func membershipChange(v *discordgo.VoiceStateUpdate) voice.MembershipChange {
	ch := voice.MembershipChange{GuildID: v.GuildID, UserID: v.UserID, After: v.ChannelID}
	if v.BeforeUpdate != nil {
		ch.Before = v.BeforeUpdate.ChannelID
	}
	return ch
}

// slashArgs flattens top-level option values into command arguments in the
// order the user gave them.
func slashArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) []string {
	args := make([]string, 0, len(opts))
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			args = append(args, o.StringValue())
		case discordgo.ApplicationCommandOptionInteger:
			args = append(args, strconv.FormatInt(o.IntValue(), 10))
		case discordgo.ApplicationCommandOptionBoolean:
			args = append(args, strconv.FormatBool(o.BoolValue()))
		}
	}
	return args
}

// invoker returns the user behind an interaction, in a guild or a DM.
func invoker(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
