package cmd

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry stores commands by name and alias. It does not perform dispatch;
// each adapter looks commands up and invokes them with its own payload.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	names    map[string]string // lowercase name or alias -> command name
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		names:    make(map[string]string),
	}
}

// Register adds a command under its name and every alias. Names are matched
// case-insensitively; a name already taken by another command is an error.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{c.Name()}, AliasesOf(c)...)
	for _, k := range keys {
		k = strings.ToLower(k)
		if owner, ok := r.names[k]; ok && owner != c.Name() {
			return fmt.Errorf("command name %q already used by %q", k, owner)
		}
	}

	r.commands[c.Name()] = c
	for _, k := range keys {
		r.names[strings.ToLower(k)] = c.Name()
	}
	return nil
}

// MustRegister is Register for setup code where a clash is a programming error.
func (r *Registry) MustRegister(c Command) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Lookup resolves a name or alias.
func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.names[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return r.commands[owner], true
}

// All returns all registered commands, sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}
