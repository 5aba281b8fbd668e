// Package reply renders bot answers as Discord embeds.
package reply

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"beatbot/internal/source"
)

// MaxDescription is the longest embed description Discord accepts.
const MaxDescription = 2048

const (
	TitleNoResults    = "No Results Found"
	TitleResults      = "Search Results"
	TitleTooMany      = "Too Many Results"
	TitleQueued       = "Request Queued"
	TitleFailed       = "Request Failed"
	TitleUsage        = "Usage:"
	TooManyAdvice     = "Too many results to display. Perhaps try narrowing your search."
	NotPlayingTitle   = "Nothing Playing"
	NotPlayingMessage = "The station did not report a current track."
)

// Renderer builds embeds with the station's branding.
type Renderer struct {
	Color    int
	SiteURL  string
	ImageURL string
	Footer   string
}

// Embed returns a branded embed with the given title and description.
func (r *Renderer) Embed(title, description string) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       r.Color,
		URL:         r.SiteURL,
	}
	if r.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: r.Footer}
	}
	return e
}

// Search renders a result listing. Entries are never cut in half: a listing
// longer than MaxDescription is replaced by an advisory.
func (r *Renderer) Search(results []source.SearchResult) *discordgo.MessageEmbed {
	if len(results) == 0 {
		return r.Embed(TitleNoResults, "")
	}

	var sb strings.Builder
	for _, s := range results {
		fmt.Fprintf(&sb, "**%d**: %s - %s\n", s.ID, s.Title, s.Artist)
	}
	if utf8.RuneCountInString(sb.String()) > MaxDescription {
		return r.Embed(TitleTooMany, TooManyAdvice)
	}
	return r.Embed(TitleResults, sb.String())
}

// Queue renders the catalog's answer to a song request.
func (r *Renderer) Queue(receipt source.QueueReceipt) *discordgo.MessageEmbed {
	if !receipt.Success {
		return r.Embed(TitleFailed, "")
	}
	return r.Embed(TitleQueued, fmt.Sprintf("Successfully queued **%s** - **%s**.", receipt.Title, receipt.Artist))
}

// Failed renders a failed catalog call.
func (r *Renderer) Failed() *discordgo.MessageEmbed {
	return r.Embed(TitleFailed, "")
}

// Status renders the current track with its cover art.
func (r *Renderer) Status(t source.TrackInfo) *discordgo.MessageEmbed {
	e := r.Embed(t.Title, fmt.Sprintf("%s\n***%s***", t.Artist, t.Album))
	if r.ImageURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.ImageURL + strconv.FormatInt(t.ID, 10)}
	}
	return e
}

// HelpEntry is one line of the usage listing.
type HelpEntry struct {
	Names       []string
	Argument    string
	Description string
}

// Help renders the usage listing, one command per line.
func (r *Renderer) Help(entries []HelpEntry) *discordgo.MessageEmbed {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		names := make([]string, len(e.Names))
		for i, n := range e.Names {
			names[i] = "**" + n + "**"
		}
		line := strings.Join(names, " | ")
		if e.Argument != "" {
			line += " <**" + e.Argument + "**>"
		}
		lines = append(lines, line+": "+e.Description)
	}
	return r.Embed(TitleUsage, strings.Join(lines, "\n"))
}
