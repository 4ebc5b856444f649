package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mgriffin/stacktracker/internal/config"
	"github.com/mgriffin/stacktracker/internal/registry"
	"github.com/mgriffin/stacktracker/internal/scheduler"
	"github.com/mgriffin/stacktracker/internal/store"
	"github.com/mgriffin/stacktracker/pkg/cluster"
	"github.com/mgriffin/stacktracker/pkg/feed"
	"github.com/mgriffin/stacktracker/pkg/ingest"
	"github.com/mgriffin/stacktracker/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildFetcher(cfg *config.Config, withContent bool) *feed.Fetcher {
	opts := []feed.Option{
		feed.WithTimeout(cfg.Fetch.ParseTimeout()),
		feed.WithUserAgent(cfg.Fetch.UserAgent),
	}
	if withContent || cfg.Fetch.FullContent {
		opts = append(opts, feed.WithContent())
	}
	return feed.NewFetcher(opts...)
}

func runFetch(registryPath string, withContent bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if registryPath == "" {
		registryPath = cfg.Registry.Path
	}

	sources, err := registry.Load(registryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	driver := ingest.New(buildFetcher(cfg, withContent), db, cfg.Fetch.MaxPostsPerFeed)
	summary, err := driver.Run(context.Background(), sources)
	if err != nil {
		return err
	}

	if failed := summary.Errors(); len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d sources failed:\n", len(failed), summary.Sources)
		for _, res := range failed {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", res.URL, res.Err)
		}
	}
	return nil
}

func runPosts(newsletter, author, search, since, until string, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	opts := store.QueryOpts{
		Newsletter: newsletter,
		Author:     author,
		Search:     search,
		Limit:      limit,
	}
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		opts.Since = t
	}
	if until != "" {
		t, err := time.Parse("2006-01-02", until)
		if err != nil {
			return fmt.Errorf("parse --until: %w", err)
		}
		// Inclusive day bound.
		opts.Until = t.Add(24*time.Hour - time.Second)
	}

	posts, err := db.QueryPosts(context.Background(), opts)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	}

	if len(posts) == 0 {
		fmt.Println("no posts found (try fetching first: stacktracker fetch)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tNEWSLETTER\tAUTHOR\tTITLE")
	for _, p := range posts {
		published := "unknown"
		if p.Published != nil {
			published = p.Published.UTC().Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", published, p.Newsletter, p.Author, p.Title)
	}
	return w.Flush()
}

func runExport(out string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()

	ctx := context.Background()
	n, err := db.ExportCSV(ctx, f, store.QueryOpts{})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "exported %d posts to %s\n", n, out)

	// Per-newsletter summary, busiest first.
	counts, err := db.CountByNewsletter(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NEWSLETTER\tPOSTS")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%d\n", name, counts[name])
	}
	return w.Flush()
}

type analyzeOpts struct {
	dataPath string
	outDir   string
	k        int
	seed     int64
	sample   int
	riskLow  float64
	riskHigh float64
	seedSet  bool
	kSet     bool
	riskSet  bool
}

func runAnalyze(opts analyzeOpts) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if opts.dataPath == "" {
		opts.dataPath = cfg.Analysis.DataPath
	}
	if opts.outDir == "" {
		opts.outDir = cfg.Analysis.OutputDir
	}
	if !opts.kSet {
		opts.k = cfg.Analysis.Clusters
	}
	if !opts.seedSet {
		opts.seed = cfg.Analysis.Seed
	}
	if !opts.riskSet {
		opts.riskLow = cfg.Analysis.RiskLow
		opts.riskHigh = cfg.Analysis.RiskHigh
	}

	analyzer := cluster.NewAnalyzer(opts.seed)
	if opts.sample > 0 {
		fmt.Fprintf(os.Stderr, "generating %d synthetic student rows...\n", opts.sample)
		if err := analyzer.Load(cluster.SampleData(opts.sample, opts.seed)); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(os.Stderr, "loading %s...\n", opts.dataPath)
		if err := analyzer.LoadCSV(opts.dataPath); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "loaded %d students\n", len(analyzer.Records()))

	if err := analyzer.Fit(opts.k); err != nil {
		return err
	}

	report, err := cluster.Report(analyzer, opts.riskLow, opts.riskHigh)
	if err != nil {
		return err
	}
	fmt.Print(report)

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", opts.outDir, err)
	}
	reportPath := filepath.Join(opts.outDir, "clustering_analysis.txt")
	if err := os.WriteFile(reportPath, []byte(report), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", reportPath, err)
	}
	if err := cluster.WriteArtifacts(analyzer, opts.outDir); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "report and artifacts written to %s\n", opts.outDir)
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	return server.New(db, port).ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver := ingest.New(buildFetcher(cfg, false), db, cfg.Fetch.MaxPostsPerFeed)
	sched := scheduler.New(driver, cfg.Registry.Path, cfg.Schedule.ParseFetchInterval())

	// Run ingestion in the background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return server.New(db, port).ListenAndServe()
}
