package middleware

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatbot/internal/command"
	"beatbot/pkg/cmd"
)

type textRecorder struct{ texts []string }

func (r *textRecorder) Text(_ context.Context, s string) error {
	r.texts = append(r.texts, s)
	return nil
}

func (r *textRecorder) Embed(context.Context, *discordgo.MessageEmbed) error { return nil }

type stubCommand struct {
	name   string
	guild  bool
	admin  bool
	called int
}

func (p *stubCommand) Name() string        { return p.name }
func (p *stubCommand) Description() string { return "stub" }
func (p *stubCommand) RequireGuild() bool  { return p.guild }
func (p *stubCommand) RequireAdmin() bool  { return p.admin }

func (p *stubCommand) Run(context.Context, *cmd.Invocation) error {
	p.called++
	return nil
}

func invoke(t *testing.T, c cmd.Command, req *command.Request) {
	t.Helper()
	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Name: c.Name(), Data: req}))
}

func TestGuildOnly(t *testing.T) {
	p := &stubCommand{name: "start", guild: true}
	c := cmd.Apply(p, WithGuildOnly())
	rec := &textRecorder{}

	invoke(t, c, &command.Request{UserID: "u1", Reply: rec})
	assert.Zero(t, p.called)
	assert.Len(t, rec.texts, 1)

	invoke(t, c, &command.Request{GuildID: "g1", UserID: "u1", Reply: rec})
	assert.Equal(t, 1, p.called)
}

func TestGuildOnlySkipsOtherCommands(t *testing.T) {
	p := &stubCommand{name: "help"}
	assert.Same(t, cmd.Command(p), cmd.Apply(p, WithGuildOnly()))
}

func TestAdminOnly(t *testing.T) {
	p := &stubCommand{name: "sessions", admin: true}
	c := cmd.Apply(p, WithAdminOnly(func(id string) bool { return id == "root" }))
	rec := &textRecorder{}

	invoke(t, c, &command.Request{GuildID: "g1", UserID: "u1", Reply: rec})
	assert.Zero(t, p.called)
	assert.Empty(t, rec.texts, "refusal is silent")

	invoke(t, c, &command.Request{GuildID: "g1", UserID: "root", Reply: rec})
	assert.Equal(t, 1, p.called)
}

func TestCommandLoggerPassesThrough(t *testing.T) {
	p := &stubCommand{name: "status"}
	c := cmd.Apply(p, WithCommandLogger(), WithAdminOnly(func(string) bool { return false }))

	invoke(t, c, &command.Request{GuildID: "g1", UserID: "u1", Reply: &textRecorder{}})
	assert.Equal(t, 1, p.called)
	assert.Equal(t, "status", c.Name())
	assert.Same(t, cmd.Command(p), cmd.Root(c))
}
