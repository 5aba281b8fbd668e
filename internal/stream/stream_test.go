package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	frames chan []byte

	mu       sync.Mutex
	speaking []bool
}

func newFakeSink(buf int) *fakeSink { return &fakeSink{frames: make(chan []byte, buf)} }

func (s *fakeSink) Frames() chan<- []byte { return s.frames }

func (s *fakeSink) Speaking(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = append(s.speaking, on)
	return nil
}

func (s *fakeSink) speakingLog() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.speaking...)
}

// lenEncoder encodes a frame as its first sample's low byte.
type lenEncoder struct{}

func (lenEncoder) Encode(pcm []int16, frameSize, _ int) ([]byte, error) {
	if len(pcm) != frameSize*Channels {
		return nil, errors.New("bad frame")
	}
	return []byte{byte(pcm[0])}, nil
}

func pcmFrames(n int) []byte {
	var buf bytes.Buffer
	for i := range n {
		frame := make([]byte, frameBytes)
		frame[0] = byte(i + 1)
		buf.Write(frame)
	}
	return buf.Bytes()
}

func testLauncher(open Opener) *Launcher {
	nop := zerolog.Nop()
	return &Launcher{
		NewEncoder: func() (Encoder, error) { return lenEncoder{}, nil },
		Open:       open,
		Log:        &nop,
	}
}

func TestStreamSendsFramesAndRecovers(t *testing.T) {
	var opens atomic.Int32
	open := func(context.Context) (io.ReadCloser, error) {
		if opens.Add(1) == 1 {
			return io.NopCloser(bytes.NewReader(pcmFrames(3))), nil
		}
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	sink := newFakeSink(16)

	s, err := testLauncher(open).Start(context.Background(), sink)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not give up")
	}

	assert.EqualValues(t, 4, opens.Load(), "first open plus three recoveries")
	require.Len(t, sink.frames, 3)
	assert.Equal(t, []byte{1}, <-sink.frames)
	assert.Equal(t, []bool{true, false}, sink.speakingLog())
	assert.True(t, s.Ended(), "gave up without Stop")
	assert.NoError(t, s.Stop())
	assert.True(t, s.Ended())
}

func TestStreamRecoveryResetsAfterProgress(t *testing.T) {
	var opens atomic.Int32
	open := func(context.Context) (io.ReadCloser, error) {
		n := opens.Add(1)
		if n <= 5 {
			return io.NopCloser(bytes.NewReader(pcmFrames(1))), nil
		}
		return nil, errors.New("station offline")
	}
	sink := newFakeSink(16)

	s, err := testLauncher(open).Start(context.Background(), sink)
	require.NoError(t, err)
	<-s.Done()

	// Five sources that each played a frame, then three failed reopens.
	assert.EqualValues(t, 8, opens.Load())
	assert.Len(t, sink.frames, 5)
}

func TestStreamStopInterruptsBlockedRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	sink := newFakeSink(1)

	s, err := testLauncher(func(context.Context) (io.ReadCloser, error) { return pr, nil }).
		Start(context.Background(), sink)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		assert.NoError(t, s.Stop())
		assert.NoError(t, s.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked")
	}
	assert.Equal(t, []bool{true, false}, sink.speakingLog())
	assert.False(t, s.Ended(), "stopped streams did not end on their own")
}

func TestStreamStopInterruptsBlockedSend(t *testing.T) {
	open := func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcmFrames(10))), nil
	}
	sink := newFakeSink(0)

	s, err := testLauncher(open).Start(context.Background(), sink)
	require.NoError(t, err)

	<-sink.frames
	require.NoError(t, s.Stop())
	<-s.Done()
}

func TestStreamStartFailures(t *testing.T) {
	_, err := testLauncher(func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("no such file")
	}).Start(context.Background(), newFakeSink(1))
	assert.Error(t, err)

	l := testLauncher(nil)
	l.NewEncoder = func() (Encoder, error) { return nil, errors.New("libopus missing") }
	_, err = l.Start(context.Background(), newFakeSink(1))
	assert.ErrorContains(t, err, "libopus missing")
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("http://radio.example/stream")
	assert.Contains(t, args, "http://radio.example/stream")
	assert.Subset(t, args, []string{"-muxdelay", "0.1", "-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1"})
	assert.Equal(t, "pipe:1", args[len(args)-1])
}
