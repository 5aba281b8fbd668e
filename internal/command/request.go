// Package command implements the bot's commands and routes chat messages and
// slash interactions to them.
package command

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"beatbot/pkg/cmd"
)

// Responder answers the user who issued a command.
type Responder interface {
	Text(ctx context.Context, content string) error
	Embed(ctx context.Context, e *discordgo.MessageEmbed) error
}

// Request is the payload every adapter puts into cmd.Invocation.Data.
type Request struct {
	GuildID   string
	ChannelID string
	UserID    string
	Username  string
	Reply     Responder
}

var (
	errNoRequest = errors.New("invocation carries no command request")

	// ErrUnknownCommand is returned for slash invocations nothing handles.
	ErrUnknownCommand = errors.New("unknown command")
)

// RequestOf extracts the Request of an invocation.
func RequestOf(inv *cmd.Invocation) (*Request, error) {
	req, ok := inv.Data.(*Request)
	if !ok || req == nil {
		return nil, errNoRequest
	}
	return req, nil
}

// ParseText splits a prefixed chat message into a command name and its
// arguments. Prefixes match case-insensitively and must be followed by
// whitespace.
func ParseText(prefixes []string, content string) (name string, args []string, ok bool) {
	lower := strings.ToLower(content)
	matched := false
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasPrefix(lower, p) && len(lower) > len(p) && isSpace(lower[len(p)]) {
			matched = true
			break
		}
	}
	if !matched {
		return "", nil, false
	}

	fields := strings.Fields(content)
	if len(fields) < 2 {
		return "", nil, false
	}
	return strings.ToLower(fields[1]), fields[2:], true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// SlashProvider is implemented by commands that are also slash commands.
type SlashProvider interface {
	SlashDefinition() *discordgo.ApplicationCommand
}

// SlashDefinitions collects the slash definitions of the registered commands.
func SlashDefinitions(reg *cmd.Registry) []*discordgo.ApplicationCommand {
	var defs []*discordgo.ApplicationCommand
	for _, c := range reg.All() {
		if sp, ok := cmd.Root(c).(SlashProvider); ok {
			defs = append(defs, sp.SlashDefinition())
		}
	}
	return defs
}

// Router looks commands up and runs them.
type Router struct {
	reg      *cmd.Registry
	prefixes []string
}

func NewRouter(reg *cmd.Registry, prefixes []string) *Router {
	return &Router{reg: reg, prefixes: prefixes}
}

// HandleText runs the command addressed by a chat message. Messages without
// a prefix or naming an unknown command are ignored.
func (r *Router) HandleText(ctx context.Context, req *Request, content string) error {
	name, args, ok := ParseText(r.prefixes, content)
	if !ok {
		return nil
	}
	c, ok := r.reg.Lookup(name)
	if !ok {
		return nil
	}
	return c.Run(ctx, &cmd.Invocation{Name: name, Args: args, Data: req})
}

// HandleSlash runs a slash command with its option values as arguments.
func (r *Router) HandleSlash(ctx context.Context, req *Request, name string, args []string) error {
	c, ok := r.reg.Lookup(name)
	if !ok {
		return ErrUnknownCommand
	}
	return c.Run(ctx, &cmd.Invocation{Name: name, Args: args, Data: req})
}
