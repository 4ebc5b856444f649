package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "stacktracker",
		Short: "Track Substack newsletters and analyze student cluster data",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(fetchCmd())
	root.AddCommand(postsCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func fetchCmd() *cobra.Command {
	var (
		registryPath string
		withContent  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one ingestion pass over the newsletter registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(registryPath, withContent)
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "registry file (default: from config)")
	cmd.Flags().BoolVar(&withContent, "content", false, "store full post content, not just summaries")
	return cmd
}

func postsCmd() *cobra.Command {
	var (
		newsletter string
		author     string
		search     string
		since      string
		until      string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List stored posts with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPosts(newsletter, author, search, since, until, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&newsletter, "newsletter", "", "filter by newsletter name")
	cmd.Flags().StringVar(&author, "author", "", "filter by author")
	cmd.Flags().StringVar(&search, "search", "", "substring match against title/summary/content")
	cmd.Flags().StringVar(&since, "since", "", "published on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "published on or before (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max posts to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func exportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored posts to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(out)
		},
	}

	cmd.Flags().StringVar(&out, "out", "latest_posts.csv", "output CSV file")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var (
		dataPath string
		outDir   string
		k        int
		seed     int64
		sample   int
		riskLow  float64
		riskHigh float64
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run k-means clustering over a student dataset and write a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(analyzeOpts{
				dataPath: dataPath,
				outDir:   outDir,
				k:        k,
				seed:     seed,
				sample:   sample,
				riskLow:  riskLow,
				riskHigh: riskHigh,
				seedSet:  cmd.Flags().Changed("seed"),
				kSet:     cmd.Flags().Changed("k"),
				riskSet:  cmd.Flags().Changed("risk-low") || cmd.Flags().Changed("risk-high"),
			})
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "student data CSV (default: from config)")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: from config)")
	cmd.Flags().IntVar(&k, "k", 0, "number of clusters (default: from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (default: from config)")
	cmd.Flags().IntVar(&sample, "sample", 0, "generate N synthetic rows instead of reading --data")
	cmd.Flags().Float64Var(&riskLow, "risk-low", 0, "middle-risk lower bound on mean arrests")
	cmd.Flags().Float64Var(&riskHigh, "risk-high", 0, "middle-risk upper bound on mean arrests")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with periodic ingestion and the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
