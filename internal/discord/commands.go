package discord

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// syncCommands registers the slash commands in a guild. Guilds come back
// after every reconnect, so a definition set already pushed to a guild is
// not pushed again.
func (b *Bot) syncCommands(ctx context.Context, guildID string, defs []*discordgo.ApplicationCommand) {
	sum := hashCommands(defs)

	b.cmdMu.Lock()
	same := b.cmdHashes[guildID] == sum
	b.cmdMu.Unlock()
	if same {
		b.log.Debug().Str("guild", guildID).Msg("slash commands unchanged")
		return
	}

	appID := b.SelfID()
	if appID == "" {
		b.log.Warn().Str("guild", guildID).Msg("slash commands skipped, no application ID yet")
		return
	}
	if _, err := b.dg.ApplicationCommandBulkOverwrite(appID, guildID, defs, discordgo.WithContext(ctx)); err != nil {
		b.log.Warn().Err(err).Str("guild", guildID).Msg("register slash commands")
		return
	}

	b.cmdMu.Lock()
	b.cmdHashes[guildID] = sum
	b.cmdMu.Unlock()
	b.log.Info().Str("guild", guildID).Int("count", len(defs)).Msg("slash commands registered")
}

// commandPrint is the user-visible shape of a slash command. IDs, versions
// and other server-assigned fields are left out so a definition fetched back
// from Discord prints the same as the one we built.
type commandPrint struct {
	Name        string                           `json:"name"`
	Description string                           `json:"description"`
	Type        discordgo.ApplicationCommandType `json:"type"`
	Options     []optionPrint                    `json:"options,omitempty"`
}

type optionPrint struct {
	Name        string                                 `json:"name"`
	Description string                                 `json:"description"`
	Type        discordgo.ApplicationCommandOptionType `json:"type"`
	Required    bool                                   `json:"required"`
	MinValue    *float64                               `json:"min_value,omitempty"`
	MaxValue    float64                                `json:"max_value,omitempty"`
	Choices     []choicePrint                          `json:"choices,omitempty"`
	Options     []optionPrint                          `json:"options,omitempty"`
}

type choicePrint struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// hashCommands fingerprints a set of definitions regardless of the order of
// commands and options.
func hashCommands(defs []*discordgo.ApplicationCommand) string {
	prints := make([]commandPrint, 0, len(defs))
	for _, d := range defs {
		prints = append(prints, commandPrint{
			Name:        d.Name,
			Description: d.Description,
			Type:        d.Type,
			Options:     printOptions(d.Options),
		})
	}
	slices.SortFunc(prints, func(a, b commandPrint) int { return strings.Compare(a.Name, b.Name) })

	h := sha1.New()
	_ = json.NewEncoder(h).Encode(prints)
	return hex.EncodeToString(h.Sum(nil))
}

func printOptions(opts []*discordgo.ApplicationCommandOption) []optionPrint {
	if len(opts) == 0 {
		return nil
	}
	out := make([]optionPrint, 0, len(opts))
	for _, o := range opts {
		p := optionPrint{
			Name:        o.Name,
			Description: o.Description,
			Type:        o.Type,
			Required:    o.Required,
			MinValue:    o.MinValue,
			MaxValue:    o.MaxValue,
			Options:     printOptions(o.Options),
		}
		for _, c := range o.Choices {
			p.Choices = append(p.Choices, choicePrint{Name: c.Name, Value: c.Value})
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b optionPrint) int { return strings.Compare(a.Name, b.Name) })
	return out
}
