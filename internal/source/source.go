// Package source queries the radio's audio source and catalog: what is
// playing now, catalog search and song requests. Every call is a single shot;
// callers decide whether to retry.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// TrackInfo describes the track the audio source is currently playing.
type TrackInfo struct {
	ID     int64
	Title  string
	Artist string
	Album  string
}

// Display renders the track the way it is shown in the bot's presence.
func (t TrackInfo) Display() string {
	return fmt.Sprintf("%s - %s", t.Title, t.Artist)
}

// SearchResult is one catalog hit.
type SearchResult struct {
	ID     int64
	Title  string
	Artist string
}

// QueueReceipt is the catalog's answer to a song request.
type QueueReceipt struct {
	Success bool
	Title   string
	Artist  string
}

// NowPlaying is anything that can report the current track.
type NowPlaying interface {
	CurrentTrack(ctx context.Context) (TrackInfo, error)
}

// Catalog is the full audio source surface used by commands.
type Catalog interface {
	NowPlaying
	Search(ctx context.Context, query string) ([]SearchResult, error)
	RequestTrack(ctx context.Context, id int64) (QueueReceipt, error)
}

// ErrMalformed marks a response that decoded but lacks required fields.
var ErrMalformed = errors.New("malformed response")

// QueryError is returned for any failed query: transport errors, non-success
// statuses, undecodable or incomplete bodies.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// StatusError carries a non-2xx HTTP status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// StatusCode implements retrylimit.HTTPError.
func (e *StatusError) StatusCode() int { return e.Code }

func queryErr(op string, err error) error {
	return &QueryError{Op: op, Err: err}
}
