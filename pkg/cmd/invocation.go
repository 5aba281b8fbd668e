// Package cmd provides a transport-agnostic command core: a command is something
// with a name, description, and Run(ctx, invocation). How it is triggered (a
// prefixed chat message, a slash interaction) is decided by the adapter that
// builds the Invocation.
package cmd

import "context"

// Invocation carries what any adapter can pass to a command: the name the
// caller used (possibly an alias), positional arguments and an opaque payload.
// Adapters set Data to their request type.
type Invocation struct {
	Name string
	Args []string
	Data any
}

// Command is the universal contract: identity plus execution.
type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Aliased is implemented by commands reachable under more than one name.
type Aliased interface {
	Aliases() []string
}

// Hidden is implemented by commands that should not be listed in help output.
type Hidden interface {
	Hidden() bool
}

// AliasesOf returns the aliases of the root command, or nil.
func AliasesOf(c Command) []string {
	if a, ok := Root(c).(Aliased); ok {
		return a.Aliases()
	}
	return nil
}

// IsHidden reports whether the root command asks to be left out of listings.
func IsHidden(c Command) bool {
	h, ok := Root(c).(Hidden)
	return ok && h.Hidden()
}
