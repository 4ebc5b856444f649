package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database Database `yaml:"database"`
	Registry Registry `yaml:"registry"`
	Fetch    Fetch    `yaml:"fetch"`
	Schedule Schedule `yaml:"schedule"`
	Server   Server   `yaml:"server"`
	Analysis Analysis `yaml:"analysis"`
}

// Database configures SQLite storage.
type Database struct {
	Path string `yaml:"path"`
}

// Registry points at the newsletter list file.
type Registry struct {
	Path string `yaml:"path"`
}

// Fetch configures feed retrieval.
type Fetch struct {
	MaxPostsPerFeed int    `yaml:"max_posts_per_feed"`
	Timeout         string `yaml:"timeout"`
	UserAgent       string `yaml:"user_agent"`
	FullContent     bool   `yaml:"full_content"`
}

// ParseTimeout returns the fetch timeout as time.Duration.
func (f Fetch) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Schedule configures the daemon's ingestion interval.
type Schedule struct {
	FetchInterval string `yaml:"fetch_interval"`
}

// ParseFetchInterval returns the fetch interval as time.Duration.
func (s Schedule) ParseFetchInterval() time.Duration {
	d, err := time.ParseDuration(s.FetchInterval)
	if err != nil {
		return 6 * time.Hour
	}
	return d
}

// Server configures the HTTP API.
type Server struct {
	Port int `yaml:"port"`
}

// Analysis configures the student clustering run.
type Analysis struct {
	DataPath  string  `yaml:"data_path"`
	OutputDir string  `yaml:"output_dir"`
	Clusters  int     `yaml:"clusters"`
	Seed      int64   `yaml:"seed"`
	RiskLow   float64 `yaml:"risk_low"`
	RiskHigh  float64 `yaml:"risk_high"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: Database{Path: "./substack.db"},
		Registry: Registry{Path: "./newsletters.txt"},
		Fetch: Fetch{
			MaxPostsPerFeed: 50,
			Timeout:         "30s",
			UserAgent:       "stacktracker/1.0",
		},
		Schedule: Schedule{FetchInterval: "6h"},
		Server:   Server{Port: 8080},
		Analysis: Analysis{
			DataPath:  "./student_data.csv",
			OutputDir: "./output/clustering",
			Clusters:  4,
			Seed:      42,
			RiskLow:   0.5,
			RiskHigh:  2.0,
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STACKTRACKER_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STACKTRACKER_REGISTRY"); v != "" {
		cfg.Registry.Path = v
	}
}
