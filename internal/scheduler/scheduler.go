package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mgriffin/stacktracker/internal/registry"
	"github.com/mgriffin/stacktracker/pkg/ingest"
)

// Scheduler runs periodic ingestion passes over the feed registry.
type Scheduler struct {
	driver       *ingest.Driver
	registryPath string
	interval     time.Duration
}

// New creates a scheduler. The registry is re-read before every pass so
// edits to the newsletter list take effect without a restart.
func New(driver *ingest.Driver, registryPath string, interval time.Duration) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		driver:       driver,
		registryPath: registryPath,
		interval:     interval,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	fmt.Fprintln(os.Stderr, "scheduler: initial ingestion...")
	s.ingestOnce(ctx)

	fmt.Fprintf(os.Stderr, "scheduler: running (fetch every %s)\n", s.interval)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			fmt.Fprintln(os.Stderr, "scheduler: ingesting...")
			s.ingestOnce(ctx)
		}
	}
}

func (s *Scheduler) ingestOnce(ctx context.Context) {
	sources, err := registry.Load(s.registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  registry error: %v\n", err)
		return
	}

	summary, err := s.driver.Run(ctx, sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  ingestion error: %v\n", err)
		return
	}
	for _, failed := range summary.Errors() {
		fmt.Fprintf(os.Stderr, "  failed source %s: %v\n", failed.URL, failed.Err)
	}
}
