package middleware

import (
	"context"

	"beatbot/internal/command"
	"beatbot/pkg/cmd"
)

// WithGuildOnly makes commands that require a server refuse direct messages.
// Commands that do not implement command.GuildOnly are left untouched.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		g, ok := cmd.Root(c).(command.GuildOnly)
		if !ok || !g.RequireGuild() {
			return c
		}
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			req, err := command.RequestOf(inv)
			if err != nil {
				return err
			}
			if req.GuildID == "" {
				return req.Reply.Text(ctx, "This command only works in a server.")
			}
			return c.Run(ctx, inv)
		})
	}
}
