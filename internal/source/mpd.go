package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/fhs/gompd/v2/mpd"
)

// ErrNothingPlaying is returned when the daemon has no current song.
var ErrNothingPlaying = errors.New("nothing playing")

// MPD reads the current track straight from the music daemon feeding the
// stream. It opens a short-lived connection per call.
type MPD struct {
	network  string
	addr     string
	password string
}

// NewMPD returns a now-playing reader for the daemon at network/addr.
func NewMPD(network, addr, password string) *MPD {
	if network == "" {
		network = "tcp"
	}
	return &MPD{network: network, addr: addr, password: password}
}

// CurrentTrack implements NowPlaying.
func (m *MPD) CurrentTrack(ctx context.Context) (TrackInfo, error) {
	var attrs mpd.Attrs
	err := m.do(ctx, func(c *mpd.Client) error {
		var err error
		attrs, err = c.CurrentSong()
		return err
	})
	if err != nil {
		return TrackInfo{}, queryErr("mpd currentsong", err)
	}
	if len(attrs) == 0 {
		return TrackInfo{}, queryErr("mpd currentsong", ErrNothingPlaying)
	}
	return trackFromAttrs(attrs), nil
}

func trackFromAttrs(a mpd.Attrs) TrackInfo {
	t := TrackInfo{
		Title:  a["Title"],
		Artist: a["Artist"],
		Album:  a["Album"],
	}
	if id, err := strconv.ParseInt(a["Id"], 10, 64); err == nil {
		t.ID = id
	}
	if t.Title == "" {
		// Untagged files: show the file name without extension.
		base := path.Base(a["file"])
		t.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	if t.Artist == "" {
		t.Artist = a["AlbumArtist"]
	}
	return t
}

// do runs fn on a fresh connection. gompd has no context support, so the call
// runs in its own goroutine and is abandoned when ctx ends.
func (m *MPD) do(ctx context.Context, fn func(c *mpd.Client) error) error {
	done := make(chan error, 1)
	go func() {
		c, err := m.dial()
		if err != nil {
			done <- fmt.Errorf("dial %s: %w", m.addr, err)
			return
		}
		defer c.Close()
		done <- fn(c)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MPD) dial() (*mpd.Client, error) {
	if m.password != "" {
		return mpd.DialAuthenticated(m.network, m.addr, m.password)
	}
	return mpd.Dial(m.network, m.addr)
}
