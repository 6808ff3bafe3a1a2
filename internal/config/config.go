// SPDX-License-Identifier: MIT

// Package config provides configuration management for pagevault.
package config

import (
	"time"
)

// FileConfig represents the YAML configuration structure.
// Pointers distinguish "not set" from "explicitly set to zero/false".
type FileConfig struct {
	Version    string `yaml:"version,omitempty"`
	DataDir    string `yaml:"dataDir,omitempty"`
	DBPath     string `yaml:"dbPath,omitempty"`
	ProfileDir string `yaml:"profileDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`

	Fetch   FetchFileConfig   `yaml:"fetch,omitempty"`
	Crawl   CrawlFileConfig   `yaml:"crawl,omitempty"`
	State   StateFileConfig   `yaml:"state,omitempty"`
	Cache   CacheFileConfig   `yaml:"cache,omitempty"`
	API     APIFileConfig     `yaml:"api,omitempty"`
	Metrics MetricsFileConfig `yaml:"metrics,omitempty"`

	ArchiveInterval string `yaml:"archiveInterval,omitempty"` // e.g. "24h", empty disables the scheduler
}

// FetchFileConfig holds HTTP retrieval settings.
type FetchFileConfig struct {
	Timeout          string   `yaml:"timeout,omitempty"`    // e.g. "30s"
	Retries          *int     `yaml:"retries,omitempty"`
	Backoff          string   `yaml:"backoff,omitempty"`    // e.g. "500ms"
	MaxBackoff       string   `yaml:"maxBackoff,omitempty"` // e.g. "30s"
	RateLimit        *float64 `yaml:"rateLimit,omitempty"`  // requests/sec per host
	RateBurst        *int     `yaml:"rateBurst,omitempty"`
	UserAgent        string   `yaml:"userAgent,omitempty"`
	ProxyURL         string   `yaml:"proxyUrl,omitempty"`
	InsecureFallback *bool    `yaml:"insecureFallback,omitempty"` // retry once without TLS verification
}

// CrawlFileConfig holds crawl loop settings.
type CrawlFileConfig struct {
	MaxPages         *int `yaml:"maxPages,omitempty"`
	AssetConcurrency *int `yaml:"assetConcurrency,omitempty"`
	SnapshotEvery    *int `yaml:"snapshotEvery,omitempty"`
}

// StateFileConfig selects the crawl state store backend.
type StateFileConfig struct {
	Backend string `yaml:"backend,omitempty"` // "memory" or "badger"
	Dir     string `yaml:"dir,omitempty"`
}

// CacheFileConfig selects the fetch metadata cache backend.
type CacheFileConfig struct {
	Backend   string `yaml:"backend,omitempty"` // "memory", "redis" or "none"
	RedisAddr string `yaml:"redisAddr,omitempty"`
	RedisDB   *int   `yaml:"redisDb,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
}

// APIFileConfig holds HTTP server settings.
type APIFileConfig struct {
	Listen    string `yaml:"listen,omitempty"`
	Token     string `yaml:"token,omitempty"`
	RateLimit *int   `yaml:"rateLimit,omitempty"` // requests/min per IP
}

// MetricsFileConfig toggles the Prometheus endpoint.
type MetricsFileConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	DBPath     string
	ProfileDir string
	LogLevel   string
	LogService string

	FetchTimeout     time.Duration
	FetchRetries     int
	FetchBackoff     time.Duration
	FetchMaxBackoff  time.Duration
	FetchRateLimit   float64
	FetchRateBurst   int
	UserAgent        string
	ProxyURL         string
	InsecureFallback bool

	MaxPages         int
	AssetConcurrency int
	SnapshotEvery    int

	StateBackend string
	StateDir     string

	CacheBackend string
	RedisAddr    string
	RedisDB      int
	CacheTTL     time.Duration

	ListenAddr   string
	APIToken     string
	APIRateLimit int

	MetricsEnabled bool

	ArchiveInterval time.Duration
}

// Snapshot is an immutable copy of the configuration handed to subsystems.
type Snapshot struct {
	AppConfig
	LoadedAt time.Time
}

// Snapshot returns an immutable copy of the configuration.
func (c AppConfig) Snapshot() Snapshot {
	return Snapshot{AppConfig: c, LoadedAt: time.Now()}
}
