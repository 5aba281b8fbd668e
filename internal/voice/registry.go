package voice

import (
	"context"
	"sort"
	"sync"
)

// Registry maps guild ids to their live session. It also hands out the
// per-guild lock that every check-then-act sequence must hold.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*guildLock
}

type guildLock struct {
	token chan struct{}
	refs  int
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*guildLock),
	}
}

// Get returns the session of guildID, or nil.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Insert registers s. It fails with ErrSessionActive if the guild already
// has a session.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.GuildID]; ok {
		return ErrSessionActive
	}
	r.sessions[s.GuildID] = s
	return nil
}

// Remove drops the session of guildID if there is one.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, guildID)
}

// Sessions returns a snapshot ordered by guild id.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// Lock acquires the single-writer token of guildID. It blocks until the token
// is free or ctx is done. The returned unlock func is idempotent.
func (r *Registry) Lock(ctx context.Context, guildID string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[guildID]
	if !ok {
		l = &guildLock{token: make(chan struct{}, 1)}
		r.locks[guildID] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.token <- struct{}{}:
	case <-ctx.Done():
		r.release(guildID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.token
			r.release(guildID, l)
		})
	}, nil
}

func (r *Registry) release(guildID string, l *guildLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, guildID)
	}
}
