// Package feed fetches and parses RSS/Atom feeds into post entries.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// Entry is one post from a parsed feed, reduced to the fields the store
// keeps. Link is the dedup key; entries without one never leave the fetcher.
type Entry struct {
	Title     string
	Link      string
	Author    string
	Published *time.Time // nil when the feed carries no parseable date
	Summary   string
	Content   string
	Tags      string
	WordCount int
	ImageURL  string
}

// Feed is a fetched feed: its channel title plus entries in feed order.
type Feed struct {
	Newsletter string
	Entries    []Entry
}

// Fetcher retrieves and parses feeds.
type Fetcher struct {
	client      *http.Client
	parser      *gofeed.Parser
	userAgent   string
	withContent bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.client.Timeout = d }
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithContent keeps each entry's full content instead of only its summary.
func WithContent() Option {
	return func(f *Fetcher) { f.withContent = true }
}

// NewFetcher creates a feed fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		parser:    gofeed.NewParser(),
		userAgent: "stacktracker/1.0",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses the feed at url. Transport failures and non-2xx
// responses return a *FetchError; malformed documents return a *ParseError.
// The returned entries follow feed order and may be empty.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, &ParseError{URL: url, Err: err}
	}

	newsletter := strings.TrimSpace(parsed.Title)
	if newsletter == "" {
		newsletter = url
	}

	out := &Feed{Newsletter: newsletter}
	for _, item := range parsed.Items {
		entry, ok := f.reduce(item, parsed, newsletter)
		if !ok {
			continue
		}
		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}

// reduce maps a gofeed item to an Entry. Items without a resolvable link are
// dropped, reported via ok=false.
func (f *Fetcher) reduce(item *gofeed.Item, parsed *gofeed.Feed, newsletter string) (Entry, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}
	if link == "" {
		return Entry{}, false
	}

	summary := strings.TrimSpace(item.Description)

	entry := Entry{
		Title:     strings.TrimSpace(item.Title),
		Link:      link,
		Author:    entryAuthor(item, parsed, newsletter),
		Published: entryPublished(item),
		Summary:   summary,
		Tags:      strings.Join(item.Categories, ", "),
		WordCount: len(strings.Fields(stripHTML(summary))),
		ImageURL:  entryImage(item),
	}
	if f.withContent {
		entry.Content = strings.TrimSpace(item.Content)
	}
	return entry, true
}

func entryAuthor(item *gofeed.Item, parsed *gofeed.Feed, newsletter string) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if parsed.Author != nil && parsed.Author.Name != "" {
		return parsed.Author.Name
	}
	return newsletter
}

// entryPublished extracts the publication time. gofeed handles the feed's
// native formats; dateparse covers the nonstandard strings Substack feeds
// occasionally carry. Unparseable dates stay nil so the caller decides the
// fallback.
func entryPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		return &t
	}
	if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		return &t
	}
	for _, raw := range []string{item.Published, item.Updated} {
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// entryImage returns the entry's lead image: the media extension when the
// feed declares one, otherwise the first <img> in the content HTML.
func entryImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, exts := range item.Extensions {
		for _, list := range exts {
			for _, ext := range list {
				if ext.Name == "content" || ext.Name == "thumbnail" {
					if url := ext.Attrs["url"]; url != "" {
						return url
					}
				}
			}
		}
	}
	html := item.Content
	if html == "" {
		html = item.Description
	}
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// stripHTML flattens markup to text for word counting.
func stripHTML(html string) string {
	if !strings.Contains(html, "<") {
		return html
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return doc.Text()
}
