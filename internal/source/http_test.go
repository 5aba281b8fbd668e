package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatbot/pkg/retrylimit"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithTimeout(time.Second), WithLimiter(nil))
}

func TestCurrentTrackWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/now_playing", r.URL.Path)
		_, _ = w.Write([]byte(`{"currentsong": {"id": 7, "title": "Blue", "artist": "Joni", "album": "Blue"}}`))
	})

	track, err := c.CurrentTrack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TrackInfo{ID: 7, Title: "Blue", Artist: "Joni", Album: "Blue"}, track)
	assert.Equal(t, "Blue - Joni", track.Display())
}

func TestCurrentTrackFlat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": "12", "title": "So What", "artist": "Miles Davis"}`))
	})

	track, err := c.CurrentTrack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), track.ID)
	assert.Empty(t, track.Album)
}

func TestCurrentTrackFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"not json": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"missing artist": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"currentsong": {"id": 1, "title": "x"}}`))
		},
		"bad id": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"id": 1.5, "title": "x", "artist": "y"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newTestClient(t, h).CurrentTrack(context.Background())
			var qe *QueryError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, "now playing", qe.Op)
		})
	}
}

func TestStatusErrorFeedsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	lim := retrylimit.NewAdaptiveLimiter(4, 1, 10, 1, 0.5)
	c := NewClient(srv.URL, WithLimiter(lim))

	_, err := c.CurrentTrack(context.Background())
	require.Error(t, err)
	assert.True(t, retrylimit.IsRateLimited(err))
	assert.Equal(t, 2.0, lim.CurrentLimit())
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/daft%20punk", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"results": [
			{"id": 1, "title": "One More Time", "artist": "Daft Punk"},
			{"id": 2, "title": "Aerodynamic", "artist": "Daft Punk"}
		]}`))
	})

	res, err := c.Search(context.Background(), "daft punk")
	require.NoError(t, err)
	assert.Equal(t, []SearchResult{
		{ID: 1, Title: "One More Time", Artist: "Daft Punk"},
		{ID: 2, Title: "Aerodynamic", Artist: "Daft Punk"},
	}, res)
}

func TestSearchEmptyAndMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	})
	res, err := c.Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, res)

	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err = c.Search(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRequestTrack(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queue_request/42", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true, "title": "Teardrop", "artist": "Massive Attack"}`))
	})

	receipt, err := c.RequestTrack(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, QueueReceipt{Success: true, Title: "Teardrop", Artist: "Massive Attack"}, receipt)
}

func TestRequestTrackRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	})
	receipt, err := c.RequestTrack(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, receipt.Success)

	c = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"title": "x"}`))
	})
	_, err = c.RequestTrack(context.Background(), 1)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CurrentTrack(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
