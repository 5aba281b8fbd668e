package discord

import (
	"context"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// messageResponder answers a text command in the channel it came from.
type messageResponder struct {
	dg        *discordgo.Session
	channelID string
}

func (r *messageResponder) Text(ctx context.Context, content string) error {
	_, err := r.dg.ChannelMessageSend(r.channelID, content, discordgo.WithContext(ctx))
	return err
}

func (r *messageResponder) Embed(ctx context.Context, e *discordgo.MessageEmbed) error {
	_, err := r.dg.ChannelMessageSendEmbed(r.channelID, e, discordgo.WithContext(ctx))
	return err
}

// interactionResponder answers a slash command. The interaction is
// acknowledged first so slow commands do not expire it; replies are sent as
// follow-ups.
type interactionResponder struct {
	dg          *discordgo.Session
	interaction *discordgo.Interaction
	replied     atomic.Bool
}

func (r *interactionResponder) Defer(ctx context.Context) error {
	return r.dg.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Text(ctx context.Context, content string) error {
	return r.followup(ctx, &discordgo.WebhookParams{Content: content})
}

func (r *interactionResponder) Embed(ctx context.Context, e *discordgo.MessageEmbed) error {
	return r.followup(ctx, &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{e}})
}

func (r *interactionResponder) followup(ctx context.Context, p *discordgo.WebhookParams) error {
	_, err := r.dg.FollowupMessageCreate(r.interaction, true, p, discordgo.WithContext(ctx))
	if err == nil {
		r.replied.Store(true)
	}
	return err
}

// Finish removes the "thinking" placeholder when the command sent nothing.
func (r *interactionResponder) Finish(ctx context.Context) {
	if r.replied.Load() {
		return
	}
	_ = r.dg.InteractionResponseDelete(r.interaction, discordgo.WithContext(ctx))
}
