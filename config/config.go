// Package config loads and validates the YAML configuration consumed by the
// acquisition and ingestion commands. Everything is explicit: there is no
// ambient environment state once the config is constructed.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Miminimi234/lawl/acquire"
	"github.com/Miminimi234/lawl/normalize"
)

// Config holds the full configuration.
type Config struct {
	Sources  SourcesConfig  `yaml:"sources"`
	Download DownloadConfig `yaml:"download"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Paths    PathsConfig    `yaml:"paths"`
}

// SourcesConfig lists where artifacts come from, in fallback order.
type SourcesConfig struct {
	Primaries []string `yaml:"primaries"`
	Mirrors   []string `yaml:"mirrors"`
	// Digest is an expected sha256 (hex) applied to every source;
	// DigestURL points at a published digest file instead.
	Digest    string `yaml:"digest"`
	DigestURL string `yaml:"digest_url"`
	// RequireDigest fails sources that cannot be verified instead of
	// accepting them as unverified.
	RequireDigest bool `yaml:"require_digest"`
}

// DownloadConfig tunes the transfer agent.
type DownloadConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BackoffBase float64 `yaml:"backoff_base"`
	BackoffCap  float64 `yaml:"backoff_cap"`
	JitterMs    int     `yaml:"jitter_ms"`
	// ConnectTimeoutSec bounds the dial phase only; transfers themselves
	// run as long as the data takes.
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	BatchSize int    `yaml:"batch_size"`
	Workers   int    `yaml:"workers"`
	Format    string `yaml:"format"` // auto | cap | courtlistener
}

// PathsConfig locates the artifact directory and the store file.
type PathsConfig struct {
	RawDir string `yaml:"raw_dir"`
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{
			MaxAttempts:       6,
			BackoffBase:       2,
			BackoffCap:        60,
			JitterMs:          600,
			ConnectTimeoutSec: 30,
		},
		Ingest: IngestConfig{
			BatchSize: 500,
			Workers:   4,
			Format:    string(normalize.FormatAuto),
		},
		Paths: PathsConfig{
			RawDir: "data/raw",
			DBPath: "data/caselaw.db",
		},
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Paths.RawDir == "" {
		return fmt.Errorf("paths.raw_dir is required")
	}
	if c.Paths.DBPath == "" {
		return fmt.Errorf("paths.db_path is required")
	}
	if c.Download.MaxAttempts <= 0 {
		return fmt.Errorf("download.max_attempts must be > 0")
	}
	if c.Download.BackoffBase <= 0 {
		return fmt.Errorf("download.backoff_base must be > 0")
	}
	if c.Download.BackoffCap <= 0 {
		return fmt.Errorf("download.backoff_cap must be > 0")
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be > 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	switch normalize.Format(c.Ingest.Format) {
	case normalize.FormatAuto, normalize.FormatCAP, normalize.FormatCourtListener:
	default:
		return fmt.Errorf("ingest.format %q unsupported (use auto, cap, or courtlistener)", c.Ingest.Format)
	}
	return nil
}

// PrimarySources builds the ordered primary source list.
func (c *Config) PrimarySources() []acquire.Source {
	return c.sources(c.Sources.Primaries, acquire.RolePrimary)
}

// MirrorSources builds the ordered mirror source list.
func (c *Config) MirrorSources() []acquire.Source {
	return c.sources(c.Sources.Mirrors, acquire.RoleMirror)
}

func (c *Config) sources(urls []string, role acquire.Role) []acquire.Source {
	out := make([]acquire.Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, acquire.Source{
			URL:       u,
			Role:      role,
			Digest:    c.Sources.Digest,
			DigestURL: c.Sources.DigestURL,
		})
	}
	return out
}

// Jitter returns the jitter ceiling as a duration; negative when disabled so
// zero-jitter configs stay deterministic.
func (c *Config) Jitter() time.Duration {
	if c.Download.JitterMs <= 0 {
		return -1
	}
	return time.Duration(c.Download.JitterMs) * time.Millisecond
}

// ConnectTimeout returns the dial timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Download.ConnectTimeoutSec) * time.Second
}
