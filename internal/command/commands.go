package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"beatbot/internal/reply"
	"beatbot/internal/source"
	"beatbot/internal/voice"
	"beatbot/pkg/cmd"
)

// Voice is the session lifecycle as commands see it.
type Voice interface {
	Start(ctx context.Context, m voice.Member) (string, error)
	Stop(ctx context.Context, m voice.Member) (string, error)
	Sessions() []*voice.Session
}

// Jobs reports background job health.
type Jobs interface {
	Status() string
}

// Deps are the collaborators of the command set.
type Deps struct {
	Voice      Voice
	Catalog    source.Catalog
	NowPlaying source.NowPlaying
	Render     *reply.Renderer
	Jobs       Jobs
}

// Easter egg videos, keyed by the word that triggers them.
var eggs = map[string]string{
	"king":  "https://www.youtube.com/watch?v=9P-DFZ3HOPQ",
	"gun":   "https://www.youtube.com/watch?v=-LgEvQuyDxE",
	"queue": "https://www.youtube.com/watch?v=WPkMUU9tUqk",
}

// All returns the full command set. help lists what is registered in reg.
func All(d Deps, reg *cmd.Registry) []cmd.Command {
	if d.NowPlaying == nil {
		d.NowPlaying = d.Catalog
	}
	return []cmd.Command{
		&HelpCommand{reg: reg, render: d.Render},
		&StartCommand{voice: d.Voice},
		&StopCommand{voice: d.Voice},
		&StatusCommand{np: d.NowPlaying, render: d.Render},
		&SearchCommand{catalog: d.Catalog, render: d.Render},
		&QueueCommand{catalog: d.Catalog, render: d.Render},
		&EggCommand{word: "king"},
		&EggCommand{word: "gun"},
		&SessionsCommand{voice: d.Voice, jobs: d.Jobs},
	}
}

// Argument is implemented by commands that take a parameter; help shows it.
type Argument interface {
	Argument() string
}

// GuildOnly is implemented by commands that make no sense outside a server.
type GuildOnly interface {
	RequireGuild() bool
}

// AdminOnly is implemented by commands restricted to the bot administrator.
type AdminOnly interface {
	RequireAdmin() bool
}

// =============================================================================
// Streaming
// =============================================================================

type StartCommand struct{ voice Voice }

func (c *StartCommand) Name() string        { return "start" }
func (c *StartCommand) Description() string { return "Join your voice channel and start streaming" }
func (c *StartCommand) Aliases() []string   { return []string{"play"} }
func (c *StartCommand) RequireGuild() bool  { return true }

func (c *StartCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *StartCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	msg, err := c.voice.Start(ctx, voice.Member{GuildID: req.GuildID, UserID: req.UserID})
	return answerLifecycle(ctx, req, msg, err)
}

type StopCommand struct{ voice Voice }

func (c *StopCommand) Name() string        { return "stop" }
func (c *StopCommand) Description() string { return "Stop streaming and leave voice channel" }
func (c *StopCommand) Aliases() []string   { return []string{"end"} }
func (c *StopCommand) RequireGuild() bool  { return true }

func (c *StopCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *StopCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	msg, err := c.voice.Stop(ctx, voice.Member{GuildID: req.GuildID, UserID: req.UserID})
	return answerLifecycle(ctx, req, msg, err)
}

// answerLifecycle replies with the outcome of a start or stop. Expected
// refusals are only reported to the user; anything else is also returned.
func answerLifecycle(ctx context.Context, req *Request, msg string, err error) error {
	if err == nil {
		return req.Reply.Text(ctx, msg)
	}

	text, expected := LifecycleMessage(err)
	if rerr := req.Reply.Text(ctx, text); rerr != nil {
		return errors.Join(err, rerr)
	}
	if expected {
		return nil
	}
	return err
}

// LifecycleMessage maps a start/stop error to the text shown to the user and
// reports whether the error is an ordinary refusal.
func LifecycleMessage(err error) (string, bool) {
	var te *voice.TransportError
	switch {
	case errors.Is(err, voice.ErrNoVoiceChannel):
		return "You need to join a voice channel first.", true
	case errors.Is(err, voice.ErrAlreadyInChannel):
		return "I'm already streaming in your channel.", true
	case errors.Is(err, voice.ErrSessionActive):
		return "I'm already streaming in another channel on this server.", true
	case errors.Is(err, voice.ErrNoActiveSession):
		return "I'm not streaming in your channel.", true
	case errors.As(err, &te):
		return "Couldn't talk to the voice server. Try again in a moment.", false
	default:
		return "Something went wrong.", false
	}
}

// =============================================================================
// Catalog
// =============================================================================

type StatusCommand struct {
	np     source.NowPlaying
	render *reply.Renderer
}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Show current playing song" }
func (c *StatusCommand) Aliases() []string   { return []string{"now_playing", "nowplaying", "np"} }

func (c *StatusCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: c.Name(), Description: c.Description()}
}

func (c *StatusCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	track, err := c.np.CurrentTrack(ctx)
	if err != nil {
		return errors.Join(err, req.Reply.Embed(ctx, c.render.Failed()))
	}
	return req.Reply.Embed(ctx, c.render.Status(track))
}

type SearchCommand struct {
	catalog source.Catalog
	render  *reply.Renderer
}

func (c *SearchCommand) Name() string        { return "search" }
func (c *SearchCommand) Description() string { return "Search for a song to request" }
func (c *SearchCommand) Aliases() []string   { return []string{"find"} }
func (c *SearchCommand) Argument() string    { return "query" }

func (c *SearchCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "query",
				Description: "Title or artist to look for",
				Required:    true,
			},
		},
	}
}

func (c *SearchCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(inv.Args, " "))
	if query == "" {
		return req.Reply.Text(ctx, "What should I search for? Try `search <query>`.")
	}

	results, err := c.catalog.Search(ctx, query)
	if err != nil {
		return errors.Join(err, req.Reply.Embed(ctx, c.render.Failed()))
	}
	return req.Reply.Embed(ctx, c.render.Search(results))
}

type QueueCommand struct {
	catalog source.Catalog
	render  *reply.Renderer
}

func (c *QueueCommand) Name() string        { return "queue" }
func (c *QueueCommand) Description() string { return "Queue a song" }
func (c *QueueCommand) Aliases() []string   { return []string{"request"} }
func (c *QueueCommand) Argument() string    { return "id" }

func (c *QueueCommand) SlashDefinition() *discordgo.ApplicationCommand {
	minID := 0.0
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "id",
				Description: "Song id from a search result",
				Required:    true,
				MinValue:    &minID,
			},
		},
	}
}

func (c *QueueCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) == 0 {
		return req.Reply.Text(ctx, eggs["queue"])
	}

	id, err := strconv.ParseInt(inv.Args[0], 10, 64)
	if err != nil || id < 0 {
		return req.Reply.Text(ctx, "Song ids are numbers. Use `search` to find one.")
	}

	receipt, err := c.catalog.RequestTrack(ctx, id)
	if err != nil {
		return errors.Join(err, req.Reply.Embed(ctx, c.render.Failed()))
	}
	return req.Reply.Embed(ctx, c.render.Queue(receipt))
}

// =============================================================================
// Misc
// =============================================================================

// helpOrder is the position of each command in the usage listing.
var helpOrder = map[string]int{
	"help":   0,
	"start":  10,
	"stop":   20,
	"status": 30,
	"search": 40,
	"queue":  50,
}

type HelpCommand struct {
	reg    *cmd.Registry
	render *reply.Renderer
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "This message" }

func (c *HelpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	return req.Reply.Embed(ctx, c.render.Help(c.entries()))
}

func (c *HelpCommand) entries() []reply.HelpEntry {
	var visible []cmd.Command
	for _, x := range c.reg.All() {
		if !cmd.IsHidden(x) {
			visible = append(visible, x)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return weight(visible[i]) < weight(visible[j])
	})

	out := make([]reply.HelpEntry, 0, len(visible))
	for _, x := range visible {
		e := reply.HelpEntry{
			Names:       append([]string{x.Name()}, cmd.AliasesOf(x)...),
			Description: x.Description(),
		}
		if a, ok := cmd.Root(x).(Argument); ok {
			e.Argument = a.Argument()
		}
		out = append(out, e)
	}
	return out
}

func weight(c cmd.Command) int {
	if w, ok := helpOrder[c.Name()]; ok {
		return w
	}
	return len(helpOrder) * 10
}

// EggCommand answers a hidden keyword with a video link.
type EggCommand struct{ word string }

func (c *EggCommand) Name() string        { return c.word }
func (c *EggCommand) Description() string { return "Easter egg" }
func (c *EggCommand) Hidden() bool        { return true }

func (c *EggCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}
	return req.Reply.Text(ctx, eggs[c.word])
}

// SessionsCommand lists live streams and background jobs for the administrator.
type SessionsCommand struct {
	voice Voice
	jobs  Jobs
}

func (c *SessionsCommand) Name() string        { return "sessions" }
func (c *SessionsCommand) Description() string { return "List active streams and background jobs" }
func (c *SessionsCommand) Hidden() bool        { return true }
func (c *SessionsCommand) RequireAdmin() bool  { return true }

func (c *SessionsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	req, err := RequestOf(inv)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sessions := c.voice.Sessions()
	if len(sessions) == 0 {
		sb.WriteString("No active streams.\n")
	} else {
		fmt.Fprintf(&sb, "Active streams (%d):\n", len(sessions))
		for _, s := range sessions {
			fmt.Fprintf(&sb, "- guild `%s`: **%s** for %s\n",
				s.GuildID, s.ChannelName, time.Since(s.StartedAt).Round(time.Second))
		}
	}
	if c.jobs != nil {
		sb.WriteString(c.jobs.Status())
	}
	return req.Reply.Text(ctx, strings.TrimSpace(sb.String()))
}
