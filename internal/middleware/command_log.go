// Package middleware holds the cross-cutting command wrappers: access checks
// and command logging.
package middleware

import (
	"context"
	"strings"
	"time"

	"beatbot/internal/command"
	"beatbot/internal/logging"
	"beatbot/pkg/cmd"
)

// WithCommandLogger logs every run with who issued it, how long it took and
// the error it returned, if any.
func WithCommandLogger() cmd.Middleware {
	log := logging.Component("command")
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			began := time.Now()
			err := c.Run(ctx, inv)

			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			if req, rerr := command.RequestOf(inv); rerr == nil {
				ev = ev.Str("guild", req.GuildID).
					Str("channel", req.ChannelID).
					Str("user", req.UserID).
					Str("username", req.Username)
			}
			ev.Str("command", c.Name()).
				Str("invoked_as", inv.Name).
				Str("args", strings.Join(inv.Args, " ")).
				Dur("took", time.Since(began)).
				Msg("command handled")
			return err
		})
	}
}
