package voice

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"beatbot/pkg/retrylimit"
)

const botID = "bot"

type fakeGateway struct {
	mu    sync.Mutex
	voice map[string]string // guild/user -> channel
	links []*fakeLink

	joinErr     error
	joinBlock   chan struct{}
	joinEntered chan struct{}
	joins       atomic.Int32

	// applied to every new link
	disconnectFailures int
	disconnectBlock    chan struct{}
	disconnectEntered  chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{voice: make(map[string]string)}
}

func (g *fakeGateway) setVoice(guildID, userID, channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if channelID == "" {
		delete(g.voice, guildID+"/"+userID)
		return
	}
	g.voice[guildID+"/"+userID] = channelID
}

func (g *fakeGateway) SelfID() string { return botID }

func (g *fakeGateway) UserVoiceChannel(guildID, userID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.voice[guildID+"/"+userID], nil
}

func (g *fakeGateway) ChannelMembers(guildID, channelID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for key, ch := range g.voice {
		if ch != channelID || len(key) <= len(guildID) || key[:len(guildID)+1] != guildID+"/" {
			continue
		}
		out = append(out, key[len(guildID)+1:])
	}
	sort.Strings(out)
	return out, nil
}

func (g *fakeGateway) ChannelName(channelID string) string { return channelID + "-name" }
func (g *fakeGateway) GuildName(guildID string) string     { return guildID + "-name" }

func (g *fakeGateway) JoinVoice(ctx context.Context, guildID, channelID string) (Link, error) {
	if g.joinEntered != nil {
		g.joinEntered <- struct{}{}
	}
	if g.joinBlock != nil {
		select {
		case <-g.joinBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.joinErr != nil {
		return nil, g.joinErr
	}
	g.joins.Add(1)
	g.setVoice(guildID, botID, channelID)

	l := &fakeLink{
		gw:       g,
		guildID:  guildID,
		frames:   make(chan []byte, 8),
		failures: g.disconnectFailures,
		block:    g.disconnectBlock,
		entered:  g.disconnectEntered,
	}
	g.mu.Lock()
	g.links = append(g.links, l)
	g.mu.Unlock()
	return l, nil
}

type fakeLink struct {
	gw      *fakeGateway
	guildID string
	frames  chan []byte

	mu          sync.Mutex
	failures    int
	block       chan struct{}
	entered     chan struct{}
	disconnects atomic.Int32
}

func (l *fakeLink) Frames() chan<- []byte { return l.frames }
func (l *fakeLink) Speaking(bool) error   { return nil }

func (l *fakeLink) Disconnect(ctx context.Context) error {
	l.disconnects.Add(1)
	if l.entered != nil {
		select {
		case l.entered <- struct{}{}:
		default:
		}
	}
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mu.Lock()
	fail := l.failures != 0
	if l.failures > 0 {
		l.failures--
	}
	l.mu.Unlock()
	if fail {
		return errors.New("gateway did not acknowledge leave")
	}

	l.gw.setVoice(l.guildID, botID, "")
	return nil
}

type fakeTransport struct {
	stops   atomic.Int32
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (t *fakeTransport) Stop() error {
	t.stops.Add(1)
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.done)
	})
	return nil
}

// end simulates a source that could not be recovered.
func (t *fakeTransport) end() {
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTransport) Done() <-chan struct{} { return t.done }

func (t *fakeTransport) Ended() bool {
	select {
	case <-t.done:
		return !t.stopped.Load()
	default:
		return false
	}
}

type fakeStreamer struct {
	mu         sync.Mutex
	err        error
	transports []*fakeTransport
}

func (s *fakeStreamer) Stream(_ context.Context, _ Link) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	t := newFakeTransport()
	s.transports = append(s.transports, t)
	return t, nil
}

func (s *fakeStreamer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transports)
}

func fastRetry() retrylimit.RetryConfig {
	return retrylimit.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestLifecycle(gw *fakeGateway, st *fakeStreamer) (*Lifecycle, *Registry) {
	reg := NewRegistry()
	l := NewLifecycle(gw, reg, st,
		WithJoinTimeout(time.Second),
		WithDisconnectRetry(fastRetry()),
		WithLogger(zerolog.Nop()),
	)
	return l, reg
}

func (r *Registry) waiters(guildID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[guildID]; ok {
		return l.refs
	}
	return 0
}
