package middleware

import (
	"context"

	"github.com/rs/zerolog/log"

	"beatbot/internal/command"
	"beatbot/pkg/cmd"
)

// WithAdminOnly restricts commands implementing command.AdminOnly to users
// for which isAdmin reports true. Everyone else gets no answer, so the
// command stays undiscoverable.
func WithAdminOnly(isAdmin func(userID string) bool) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		a, ok := cmd.Root(c).(command.AdminOnly)
		if !ok || !a.RequireAdmin() {
			return c
		}
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			req, err := command.RequestOf(inv)
			if err != nil {
				return err
			}
			if !isAdmin(req.UserID) {
				log.Warn().Str("user", req.UserID).Str("command", c.Name()).Msg("admin command refused")
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}
