// Package ingest runs one full pass over the feed registry, storing new
// posts and skipping already-seen links.
package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mgriffin/stacktracker/internal/registry"
	"github.com/mgriffin/stacktracker/internal/store"
	"github.com/mgriffin/stacktracker/pkg/feed"
)

// SourceResult is the outcome of ingesting one registry source.
type SourceResult struct {
	URL        string
	Newsletter string
	Inserted   int
	Skipped    int
	Err        error
}

// Summary aggregates one ingestion run.
type Summary struct {
	Sources  int
	Inserted int
	Skipped  int
	Results  []SourceResult
}

// Errors returns the failed per-source results.
func (s *Summary) Errors() []SourceResult {
	var failed []SourceResult
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Driver iterates the registry, fetching each feed and writing new posts to
// the store.
type Driver struct {
	fetcher *feed.Fetcher
	store   store.Store
	feedCap int
	now     func() time.Time
}

// New creates an ingestion driver. feedCap limits posts requested per
// Substack feed (0 = feed default).
func New(fetcher *feed.Fetcher, s store.Store, feedCap int) *Driver {
	return &Driver{
		fetcher: fetcher,
		store:   s,
		feedCap: feedCap,
		now:     time.Now,
	}
}

// Run ingests every source sequentially. A failing source is recorded and
// the run continues; a store failure aborts the run since every remaining
// source depends on it.
func (d *Driver) Run(ctx context.Context, sources []registry.Source) (*Summary, error) {
	summary := &Summary{Sources: len(sources)}

	for _, src := range sources {
		res := d.ingestSource(ctx, src)
		summary.Results = append(summary.Results, res)
		summary.Inserted += res.Inserted
		summary.Skipped += res.Skipped

		if res.Err != nil {
			if _, fatal := res.Err.(*storeFailure); fatal {
				return summary, fmt.Errorf("store failure ingesting %s: %w", src.URL, res.Err)
			}
			d.logf("  %s error: %v\n", src.URL, res.Err)
			continue
		}
		d.logf("  %s: %d new, %d duplicate\n", res.Newsletter, res.Inserted, res.Skipped)
	}

	d.logf("total: %d new posts, %d duplicates from %d sources\n",
		summary.Inserted, summary.Skipped, summary.Sources)
	return summary, nil
}

// storeFailure marks an error as fatal for the whole run.
type storeFailure struct{ err error }

func (e *storeFailure) Error() string { return e.err.Error() }
func (e *storeFailure) Unwrap() error { return e.err }

func (d *Driver) ingestSource(ctx context.Context, src registry.Source) SourceResult {
	res := SourceResult{URL: src.URL}

	feedURL := registry.Normalize(src.URL, d.feedCap)
	d.logf("fetching %s...\n", feedURL)

	fetched, err := d.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		res.Err = err
		return res
	}
	res.Newsletter = fetched.Newsletter

	fetchedAt := d.now().UTC()
	for _, entry := range fetched.Entries {
		published := entry.Published
		if published == nil {
			// Unknown dates fall back to the ingestion timestamp here,
			// not inside the fetcher.
			t := fetchedAt
			published = &t
		}

		inserted, err := d.store.InsertIfAbsent(ctx, &store.Post{
			Newsletter: fetched.Newsletter,
			Title:      entry.Title,
			URL:        entry.Link,
			Author:     entry.Author,
			Published:  published,
			Summary:    entry.Summary,
			Content:    entry.Content,
			Tags:       entry.Tags,
			WordCount:  entry.WordCount,
			ImageURL:   entry.ImageURL,
			FetchedAt:  fetchedAt,
		})
		if err != nil {
			res.Err = &storeFailure{err: err}
			return res
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	return res
}

func (d *Driver) logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}
