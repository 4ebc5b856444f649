package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Letter</title>
  <link>https://example.substack.com</link>
  <item>
    <title>First Post</title>
    <link>https://example.substack.com/p/first</link>
    <author>writer@example.com (Jo Writer)</author>
    <pubDate>Mon, 05 Jan 2026 10:00:00 GMT</pubDate>
    <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt; from the first post&lt;/p&gt;</description>
    <category>essays</category>
    <category>tech</category>
  </item>
  <item>
    <title>No Link Post</title>
    <description>this entry has no link and must be dropped</description>
  </item>
  <item>
    <title>Undated Post</title>
    <link>https://example.substack.com/p/undated</link>
    <description>no date here</description>
  </item>
</channel>
</rss>`

func serveFeed(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesEntriesInFeedOrder(t *testing.T) {
	srv := serveFeed(t, http.StatusOK, sampleRSS)

	f := NewFetcher()
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Example Letter", got.Newsletter)
	// The link-less entry never leaves the fetcher.
	require.Len(t, got.Entries, 2)

	first := got.Entries[0]
	assert.Equal(t, "First Post", first.Title)
	assert.Equal(t, "https://example.substack.com/p/first", first.Link)
	require.NotNil(t, first.Published)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), first.Published.UTC())
	assert.Equal(t, "essays, tech", first.Tags)
	assert.Equal(t, 6, first.WordCount)

	undated := got.Entries[1]
	assert.Equal(t, "https://example.substack.com/p/undated", undated.Link)
	assert.Nil(t, undated.Published, "unparseable dates stay nil, caller decides the fallback")
}

func TestFetchNon2xxIsFetchError(t *testing.T) {
	srv := serveFeed(t, http.StatusInternalServerError, "boom")

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, srv.URL, fetchErr.URL)
}

func TestFetchTransportFailureIsFetchError(t *testing.T) {
	srv := serveFeed(t, http.StatusOK, sampleRSS)
	srv.Close() // refuse connections

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestFetchMalformedDocumentIsParseError(t *testing.T) {
	srv := serveFeed(t, http.StatusOK, "this is not a feed")

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)

	var fetchErr *FetchError
	assert.False(t, errors.As(err, &fetchErr))
}

func TestFetchWithContentKeepsFullContent(t *testing.T) {
	const rssWithContent = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Example Letter</title>
  <item>
    <title>Rich Post</title>
    <link>https://example.substack.com/p/rich</link>
    <description>short summary</description>
    <content:encoded>&lt;p&gt;Full body&lt;/p&gt;&lt;img src="https://img.example/lead.png"/&gt;</content:encoded>
  </item>
</channel>
</rss>`
	srv := serveFeed(t, http.StatusOK, rssWithContent)

	// Without the option, content is not kept.
	got, err := NewFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Empty(t, got.Entries[0].Content)
	assert.Equal(t, "https://img.example/lead.png", got.Entries[0].ImageURL)

	got, err = NewFetcher(WithContent()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Contains(t, got.Entries[0].Content, "Full body")
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain text", stripHTML("plain text"))
	assert.Equal(t, "hello world", stripHTML("<p>hello <b>world</b></p>"))
}
