package source

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMPD answers "currentsong" with song and ignores every other command.
func fakeMPD(t *testing.T, song string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveMPD(conn, song)
		}
	}()
	return ln.Addr().String()
}

func serveMPD(conn net.Conn, song string) {
	defer conn.Close()
	_, _ = conn.Write([]byte("OK MPD 0.23.0\n"))

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "currentsong":
			_, _ = conn.Write([]byte(song + "OK\n"))
		case "close":
			return
		default:
			_, _ = conn.Write([]byte("OK\n"))
		}
	}
}

func TestMPDCurrentTrack(t *testing.T) {
	addr := fakeMPD(t, "file: music/blue.flac\nTitle: Blue\nArtist: Joni Mitchell\nAlbum: Blue\nId: 31\n")

	track, err := NewMPD("tcp", addr, "").CurrentTrack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrackInfo{ID: 31, Title: "Blue", Artist: "Joni Mitchell", Album: "Blue"}, track)
}

func TestMPDUntaggedFile(t *testing.T) {
	addr := fakeMPD(t, "file: incoming/some_mix.mp3\nAlbumArtist: Various\nId: 2\n")

	track, err := NewMPD("", addr, "").CurrentTrack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "some_mix", track.Title)
	assert.Equal(t, "Various", track.Artist)
}

func TestMPDNothingPlaying(t *testing.T) {
	addr := fakeMPD(t, "")

	_, err := NewMPD("tcp", addr, "").CurrentTrack(context.Background())
	assert.ErrorIs(t, err, ErrNothingPlaying)
	var qe *QueryError
	assert.ErrorAs(t, err, &qe)
}

func TestMPDUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = NewMPD("tcp", addr, "").CurrentTrack(ctx)
	var qe *QueryError
	assert.ErrorAs(t, err, &qe)
}
