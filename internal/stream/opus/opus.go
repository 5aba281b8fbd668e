// Package opus binds libopus for the stream pump. It is kept apart from
// package stream so the pump can be tested without cgo.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"beatbot/internal/stream"
)

// Bitrate in bits per second; Discord voice channels default to 64kbps.
const Bitrate = 64000

// NewEncoder returns a music-tuned stereo encoder at the stream's sample rate.
func NewEncoder() (stream.Encoder, error) {
	enc, err := gopus.NewEncoder(stream.SampleRate, stream.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("new opus encoder: %w", err)
	}
	enc.SetBitrate(Bitrate)
	return enc, nil
}
