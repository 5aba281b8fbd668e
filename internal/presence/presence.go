// Package presence keeps the bot's "playing" status in sync with the station.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"beatbot/internal/logging"
	"beatbot/internal/source"
)

// ErrConnectionLost ends a life of Run when the gateway connection drops.
var ErrConnectionLost = errors.New("gateway connection lost")

// Publisher pushes a status line to the chat platform.
type Publisher interface {
	SetStatus(ctx context.Context, text string) error
}

// Syncer polls the audio source and publishes the current track whenever it
// changes. Run is one life of the loop; a supervisor restarts it after a
// connection loss or a panic, and every life starts with nothing announced.
type Syncer struct {
	source   source.NowPlaying
	pub      Publisher
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	connected bool
	ready     chan struct{} // closed while connected
	lost      chan struct{} // closed when the current connection drops
}

func NewSyncer(src source.NowPlaying, pub Publisher, interval time.Duration) *Syncer {
	return &Syncer{
		source:   src,
		pub:      pub,
		interval: interval,
		log:      logging.Component("presence"),
		ready:    make(chan struct{}),
		lost:     make(chan struct{}),
	}
}

// MarkReady records that the gateway connection is up.
func (s *Syncer) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return
	}
	s.connected = true
	s.lost = make(chan struct{})
	close(s.ready)
}

// MarkLost records that the gateway connection dropped.
func (s *Syncer) MarkLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return
	}
	s.connected = false
	s.ready = make(chan struct{})
	close(s.lost)
}

// Run waits for the connection, then ticks immediately and on every interval
// until ctx is done or the connection drops. Query and publish failures are
// logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	lost, err := s.awaitReady(ctx)
	if err != nil {
		return err
	}
	s.log.Debug().Dur("interval", s.interval).Msg("presence sync running")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-lost:
			return ErrConnectionLost
		default:
		}

		last = s.tick(ctx, last)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-lost:
			return ErrConnectionLost
		case <-ticker.C:
		}
	}
}

func (s *Syncer) awaitReady(ctx context.Context) (<-chan struct{}, error) {
	for {
		s.mu.Lock()
		up, ready, lost := s.connected, s.ready, s.lost
		s.mu.Unlock()
		if up {
			return lost, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// tick publishes the current track if it differs from last and returns the
// value now shown. A failed publish leaves last unchanged.
func (s *Syncer) tick(ctx context.Context, last string) string {
	tctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	track, err := s.source.CurrentTrack(tctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Msg("query current track")
		}
		return last
	}

	text := track.Display()
	if text == last {
		return last
	}
	if err := s.pub.SetStatus(tctx, text); err != nil {
		s.log.Warn().Err(err).Str("status", text).Msg("publish presence")
		return last
	}

	s.log.Info().Str("status", text).Msg("presence updated")
	return text
}
