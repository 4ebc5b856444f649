package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "./substack.db", cfg.Database.Path)
	assert.Equal(t, "./newsletters.txt", cfg.Registry.Path)
	assert.Equal(t, 50, cfg.Fetch.MaxPostsPerFeed)
	assert.Equal(t, 30*time.Second, cfg.Fetch.ParseTimeout())
	assert.Equal(t, 6*time.Hour, cfg.Schedule.ParseFetchInterval())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Analysis.Clusters)
	assert.Equal(t, int64(42), cfg.Analysis.Seed)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  path: /var/lib/stacktracker/posts.db
fetch:
  max_posts_per_feed: 10
  timeout: 5s
analysis:
  clusters: 3
  risk_low: 1.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/stacktracker/posts.db", cfg.Database.Path)
	assert.Equal(t, 10, cfg.Fetch.MaxPostsPerFeed)
	assert.Equal(t, 5*time.Second, cfg.Fetch.ParseTimeout())
	assert.Equal(t, 3, cfg.Analysis.Clusters)
	assert.Equal(t, 1.0, cfg.Analysis.RiskLow)

	// Untouched sections keep their defaults.
	assert.Equal(t, "./newsletters.txt", cfg.Registry.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2.0, cfg.Analysis.RiskHigh)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Database.Path, cfg.Database.Path)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STACKTRACKER_DB_PATH", "/tmp/override.db")
	t.Setenv("STACKTRACKER_REGISTRY", "/tmp/feeds.txt")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "/tmp/feeds.txt", cfg.Registry.Path)
}

func TestParseTimeoutFallsBackOnGarbage(t *testing.T) {
	f := Fetch{Timeout: "soon"}
	assert.Equal(t, 30*time.Second, f.ParseTimeout())
}
