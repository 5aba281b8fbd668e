package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"beatbot/pkg/retrylimit"
)

const maxBodyBytes = 1 << 20

// Client talks to the radio website's JSON API:
//
//	GET {base}now_playing          -> {"currentsong": {"id", "title", "artist", "album"}}
//	GET {base}search/{query}       -> {"results": [{"id", "title", "artist"}]}
//	GET {base}queue_request/{id}   -> {"success": bool, "title", "artist"}
type Client struct {
	base    string
	http    *http.Client
	limiter *retrylimit.AdaptiveLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLimiter paces outgoing requests; nil disables pacing.
func WithLimiter(l *retrylimit.AdaptiveLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	c := &Client{
		base:    baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type trackJSON struct {
	ID     *json.Number `json:"id"`
	Title  *string      `json:"title"`
	Artist *string      `json:"artist"`
	Album  string       `json:"album"`
}

func (t *trackJSON) present() bool {
	return t != nil && (t.ID != nil || t.Title != nil || t.Artist != nil)
}

// CurrentTrack returns the track the station is playing now.
func (c *Client) CurrentTrack(ctx context.Context) (TrackInfo, error) {
	const op = "now playing"

	var body struct {
		CurrentSong *trackJSON `json:"currentsong"`
		trackJSON
	}
	if err := c.get(ctx, "now_playing", &body); err != nil {
		return TrackInfo{}, queryErr(op, err)
	}

	song := body.CurrentSong
	if !song.present() {
		song = &body.trackJSON
	}
	if song.Title == nil || song.Artist == nil || song.ID == nil {
		return TrackInfo{}, queryErr(op, fmt.Errorf("%w: id, title and artist are required", ErrMalformed))
	}
	id, err := song.ID.Int64()
	if err != nil {
		return TrackInfo{}, queryErr(op, fmt.Errorf("%w: id %q", ErrMalformed, song.ID.String()))
	}

	return TrackInfo{ID: id, Title: *song.Title, Artist: *song.Artist, Album: song.Album}, nil
}

// Search returns catalog entries matching query.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	const op = "search"

	var body struct {
		Results *[]struct {
			ID     *json.Number `json:"id"`
			Title  string       `json:"title"`
			Artist string       `json:"artist"`
		} `json:"results"`
	}
	if err := c.get(ctx, "search/"+url.PathEscape(query), &body); err != nil {
		return nil, queryErr(op, err)
	}
	if body.Results == nil {
		return nil, queryErr(op, fmt.Errorf("%w: results missing", ErrMalformed))
	}

	out := make([]SearchResult, 0, len(*body.Results))
	for i, r := range *body.Results {
		if r.ID == nil {
			return nil, queryErr(op, fmt.Errorf("%w: result %d has no id", ErrMalformed, i))
		}
		id, err := r.ID.Int64()
		if err != nil {
			return nil, queryErr(op, fmt.Errorf("%w: result %d id %q", ErrMalformed, i, r.ID.String()))
		}
		out = append(out, SearchResult{ID: id, Title: r.Title, Artist: r.Artist})
	}
	return out, nil
}

// RequestTrack asks the station to queue the track with the given id.
func (c *Client) RequestTrack(ctx context.Context, id int64) (QueueReceipt, error) {
	const op = "queue request"

	var body struct {
		Success *bool  `json:"success"`
		Title   string `json:"title"`
		Artist  string `json:"artist"`
	}
	if err := c.get(ctx, "queue_request/"+strconv.FormatInt(id, 10), &body); err != nil {
		return QueueReceipt{}, queryErr(op, err)
	}
	if body.Success == nil {
		return QueueReceipt{}, queryErr(op, fmt.Errorf("%w: success missing", ErrMalformed))
	}

	return QueueReceipt{Success: *body.Success, Title: body.Title, Artist: body.Artist}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) (err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		defer func() { c.limiter.Observe(err) }()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &StatusError{Code: resp.StatusCode}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
