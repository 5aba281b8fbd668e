// Package stream pumps the radio stream into a voice connection: ffmpeg
// decodes the source to raw PCM, each 20ms frame is encoded to opus and sent
// to the sink.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"beatbot/internal/logging"
)

const (
	Channels   = 2
	SampleRate = 48000
	FrameSize  = 960 // 20ms at 48kHz

	frameBytes = FrameSize * Channels * 2

	defaultRecoveries = 3
)

// Encoder turns one PCM frame into an opus packet.
type Encoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// Sink receives opus frames. A voice connection is a Sink.
type Sink interface {
	Frames() chan<- []byte
	Speaking(on bool) error
}

// Opener starts a PCM source: signed 16-bit little-endian, 48kHz stereo.
// Closing the reader must release everything the source holds.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Launcher starts streams of one source URL.
type Launcher struct {
	FFmpegPath string
	URL        string
	NewEncoder func() (Encoder, error)

	// Open overrides the ffmpeg source.
	Open Opener
	// MaxRecoveries is how many times in a row a source that ended is
	// re-opened before the stream gives up. Zero means 3.
	MaxRecoveries int
	RecoveryDelay time.Duration

	Log *zerolog.Logger
}

// Stream is a running pump. Stop it to release the source.
type Stream struct {
	sink    Sink
	enc     Encoder
	open    Opener
	retries int
	delay   time.Duration
	log     zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	stopped atomic.Bool

	mu  sync.Mutex
	src io.ReadCloser
}

// Start opens the source and begins sending frames to sink. ctx bounds the
// first open only.
func (l *Launcher) Start(ctx context.Context, sink Sink) (*Stream, error) {
	if l.NewEncoder == nil {
		return nil, errors.New("no opus encoder configured")
	}
	enc, err := l.NewEncoder()
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	log := logging.Component("stream")
	if l.Log != nil {
		log = *l.Log
	}

	open := l.Open
	if open == nil {
		open = l.ffmpeg(log)
	}

	s := &Stream{
		sink:    sink,
		enc:     enc,
		open:    open,
		retries: l.MaxRecoveries,
		delay:   l.RecoveryDelay,
		log:     log,
		done:    make(chan struct{}),
	}
	if s.retries <= 0 {
		s.retries = defaultRecoveries
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	src, err := s.openWithin(ctx)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("open source: %w", err)
	}
	if s.ctx.Err() != nil {
		_ = src.Close()
		return nil, fmt.Errorf("open source: %w", ctx.Err())
	}
	s.setSource(src)

	if err := sink.Speaking(true); err != nil {
		s.log.Warn().Err(err).Msg("set speaking")
	}

	go s.run()
	return s, nil
}

// openWithin opens a source whose lifetime is the stream's, giving up when
// ctx ends first.
func (s *Stream) openWithin(ctx context.Context) (io.ReadCloser, error) {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	return s.open(s.ctx)
}

// Stop ends playback, kills the source and waits for the pump to exit.
// It is safe to call more than once.
func (s *Stream) Stop() error {
	s.once.Do(func() {
		select {
		case <-s.done:
		default:
			s.stopped.Store(true)
		}
		s.cancel()
		s.closeSource()
	})
	<-s.done
	return nil
}

// Done is closed when the pump has exited.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Ended reports whether the pump exited on its own, after the source could
// not be recovered.
func (s *Stream) Ended() bool {
	select {
	case <-s.done:
		return !s.stopped.Load()
	default:
		return false
	}
}

func (s *Stream) run() {
	defer close(s.done)
	defer func() {
		if err := s.sink.Speaking(false); err != nil {
			s.log.Debug().Err(err).Msg("clear speaking")
		}
	}()

	failures := 0
	for {
		sent, err := s.pump()
		s.closeSource()
		if s.ctx.Err() != nil {
			return
		}

		if sent > 0 {
			failures = 0
		}
		failures++
		if failures > s.retries {
			s.log.Error().Err(err).Int("attempts", failures-1).Msg("source ended, giving up")
			return
		}
		s.log.Warn().Err(err).Int("attempt", failures).Msg("source ended early, reopening")

		if !s.sleep() {
			return
		}
		src, err := s.open(s.ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("reopen source")
			continue
		}
		s.setSource(src)
	}
}

// pump reads frames until the source fails or the stream is stopped.
func (s *Stream) pump() (int, error) {
	src := s.source()
	if src == nil {
		return 0, io.ErrUnexpectedEOF
	}

	raw := make([]byte, frameBytes)
	pcm := make([]int16, FrameSize*Channels)
	frames := s.sink.Frames()

	sent := 0
	for {
		if _, err := io.ReadFull(src, raw); err != nil {
			return sent, err
		}
		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		}

		packet, err := s.enc.Encode(pcm, FrameSize, frameBytes)
		if err != nil {
			return sent, fmt.Errorf("encode: %w", err)
		}

		select {
		case frames <- packet:
			sent++
		case <-s.ctx.Done():
			return sent, s.ctx.Err()
		}
	}
}

func (s *Stream) sleep() bool {
	if s.delay <= 0 {
		return s.ctx.Err() == nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Stream) source() io.ReadCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

func (s *Stream) setSource(src io.ReadCloser) {
	s.mu.Lock()
	stale := s.ctx.Err() != nil
	if !stale {
		s.src = src
	}
	s.mu.Unlock()
	if stale {
		_ = src.Close()
	}
}

func (s *Stream) closeSource() {
	s.mu.Lock()
	src := s.src
	s.src = nil
	s.mu.Unlock()
	if src != nil {
		_ = src.Close()
	}
}

// ffmpeg returns an Opener that runs ffmpeg against the launcher's URL.
func (l *Launcher) ffmpeg(log zerolog.Logger) Opener {
	path := l.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	return func(ctx context.Context) (io.ReadCloser, error) {
		cmd := exec.CommandContext(ctx, path, ffmpegArgs(l.URL)...)
		cmd.Stderr = log.With().Str("source", "ffmpeg").Logger()

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start ffmpeg: %w", err)
		}
		return &process{cmd: cmd, stdout: stdout}, nil
	}
}

func ffmpegArgs(url string) []string {
	return []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
		"-muxdelay", "0.1",
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	}
}

// process is a running ffmpeg. Close kills it and reaps it.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	once   sync.Once
}

func (p *process) Read(b []byte) (int, error) { return p.stdout.Read(b) }

func (p *process) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.cmd.Wait()
	})
	return nil
}
