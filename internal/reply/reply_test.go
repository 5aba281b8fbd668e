package reply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beatbot/internal/source"
)

func testRenderer() *Renderer {
	return &Renderer{Color: 0x123456, SiteURL: "http://radio.example/", ImageURL: "http://radio.example/art/", Footer: "beatbot radio"}
}

func TestEmbedBranding(t *testing.T) {
	e := testRenderer().Embed("t", "d")
	assert.Equal(t, 0x123456, e.Color)
	assert.Equal(t, "http://radio.example/", e.URL)
	require.NotNil(t, e.Footer)
	assert.Equal(t, "beatbot radio", e.Footer.Text)
}

func TestSearchNoResults(t *testing.T) {
	e := testRenderer().Search(nil)
	assert.Equal(t, TitleNoResults, e.Title)
	assert.Empty(t, e.Description)
}

func TestSearchListing(t *testing.T) {
	e := testRenderer().Search([]source.SearchResult{
		{ID: 1, Title: "Windowlicker", Artist: "Aphex Twin"},
		{ID: 22, Title: "Xtal", Artist: "Aphex Twin"},
	})
	assert.Equal(t, TitleResults, e.Title)
	assert.Equal(t, "**1**: Windowlicker - Aphex Twin\n**22**: Xtal - Aphex Twin\n", e.Description)
}

func TestSearchTooMany(t *testing.T) {
	var results []source.SearchResult
	for i := range 100 {
		results = append(results, source.SearchResult{ID: int64(i), Title: strings.Repeat("x", 20), Artist: "y"})
	}
	e := testRenderer().Search(results)
	assert.Equal(t, TitleTooMany, e.Title)
	assert.Equal(t, TooManyAdvice, e.Description)
}

func TestSearchAtLimitIsKept(t *testing.T) {
	// "**1**: " + title + " - a\n" is exactly 2048 runes.
	title := strings.Repeat("é", MaxDescription-len("**1**: ")-len(" - a\n"))
	e := testRenderer().Search([]source.SearchResult{{ID: 1, Title: title, Artist: "a"}})
	assert.Equal(t, TitleResults, e.Title)
}

func TestQueue(t *testing.T) {
	r := testRenderer()

	ok := r.Queue(source.QueueReceipt{Success: true, Title: "Roygbiv", Artist: "Boards of Canada"})
	assert.Equal(t, TitleQueued, ok.Title)
	assert.Equal(t, "Successfully queued **Roygbiv** - **Boards of Canada**.", ok.Description)

	failed := r.Queue(source.QueueReceipt{Success: false, Title: "ignored"})
	assert.Equal(t, TitleFailed, failed.Title)
	assert.Empty(t, failed.Description)
}

func TestStatus(t *testing.T) {
	e := testRenderer().Status(source.TrackInfo{ID: 9, Title: "Avril 14th", Artist: "Aphex Twin", Album: "Drukqs"})
	assert.Equal(t, "Avril 14th", e.Title)
	assert.Equal(t, "Aphex Twin\n***Drukqs***", e.Description)
	require.NotNil(t, e.Thumbnail)
	assert.Equal(t, "http://radio.example/art/9", e.Thumbnail.URL)
}

func TestHelp(t *testing.T) {
	e := testRenderer().Help([]HelpEntry{
		{Names: []string{"help"}, Description: "This message"},
		{Names: []string{"search", "find"}, Argument: "query", Description: "Search for a song to request"},
	})
	assert.Equal(t, TitleUsage, e.Title)
	assert.Equal(t, "**help**: This message\n**search** | **find** <**query**>: Search for a song to request", e.Description)
}
