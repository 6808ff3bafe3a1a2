// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied before file and environment merging.
const (
	DefaultDataDir          = "/var/lib/pagevault"
	DefaultListenAddr       = ":8080"
	DefaultUserAgent        = "pagevault/1.0"
	DefaultFetchTimeout     = 30 * time.Second
	DefaultFetchRetries     = 3
	DefaultFetchBackoff     = 500 * time.Millisecond
	DefaultFetchMaxBackoff  = 30 * time.Second
	DefaultFetchRateLimit   = 4.0
	DefaultFetchRateBurst   = 8
	DefaultMaxPages         = 10000
	DefaultAssetConcurrency = 5
	DefaultSnapshotEvery    = 100
	DefaultStateBackend     = "memory"
	DefaultCacheBackend     = "memory"
	DefaultCacheTTL         = 15 * time.Minute
	DefaultAPIRateLimit     = 60
)

// Loader resolves the application configuration with precedence
// ENV > file > defaults.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a configuration loader. path may be empty, in which case
// only environment variables and defaults apply.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves the configuration and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults(l.version)

	if l.path != "" {
		fc, err := readFile(l.path)
		if err != nil {
			return AppConfig{}, err
		}
		mergeFile(&cfg, fc)
	}

	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func defaults(version string) AppConfig {
	return AppConfig{
		Version:          version,
		DataDir:          DefaultDataDir,
		LogLevel:         "info",
		LogService:       "pagevault",
		FetchTimeout:     DefaultFetchTimeout,
		FetchRetries:     DefaultFetchRetries,
		FetchBackoff:     DefaultFetchBackoff,
		FetchMaxBackoff:  DefaultFetchMaxBackoff,
		FetchRateLimit:   DefaultFetchRateLimit,
		FetchRateBurst:   DefaultFetchRateBurst,
		UserAgent:        DefaultUserAgent,
		MaxPages:         DefaultMaxPages,
		AssetConcurrency: DefaultAssetConcurrency,
		SnapshotEvery:    DefaultSnapshotEvery,
		StateBackend:     DefaultStateBackend,
		CacheBackend:     DefaultCacheBackend,
		CacheTTL:         DefaultCacheTTL,
		ListenAddr:       DefaultListenAddr,
		APIRateLimit:     DefaultAPIRateLimit,
		MetricsEnabled:   true,
	}
}

func readFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return fc, fmt.Errorf("read config file %q: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fc, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fc, nil
}

func mergeFile(cfg *AppConfig, fc FileConfig) {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.ProfileDir, fc.ProfileDir)
	setString(&cfg.LogLevel, fc.LogLevel)

	setDuration(&cfg.FetchTimeout, fc.Fetch.Timeout)
	setIntPtr(&cfg.FetchRetries, fc.Fetch.Retries)
	setDuration(&cfg.FetchBackoff, fc.Fetch.Backoff)
	setDuration(&cfg.FetchMaxBackoff, fc.Fetch.MaxBackoff)
	if fc.Fetch.RateLimit != nil {
		cfg.FetchRateLimit = *fc.Fetch.RateLimit
	}
	setIntPtr(&cfg.FetchRateBurst, fc.Fetch.RateBurst)
	setString(&cfg.UserAgent, fc.Fetch.UserAgent)
	setString(&cfg.ProxyURL, fc.Fetch.ProxyURL)
	if fc.Fetch.InsecureFallback != nil {
		cfg.InsecureFallback = *fc.Fetch.InsecureFallback
	}

	setIntPtr(&cfg.MaxPages, fc.Crawl.MaxPages)
	setIntPtr(&cfg.AssetConcurrency, fc.Crawl.AssetConcurrency)
	setIntPtr(&cfg.SnapshotEvery, fc.Crawl.SnapshotEvery)

	setString(&cfg.StateBackend, fc.State.Backend)
	setString(&cfg.StateDir, fc.State.Dir)

	setString(&cfg.CacheBackend, fc.Cache.Backend)
	setString(&cfg.RedisAddr, fc.Cache.RedisAddr)
	setIntPtr(&cfg.RedisDB, fc.Cache.RedisDB)
	setDuration(&cfg.CacheTTL, fc.Cache.TTL)

	setString(&cfg.ListenAddr, fc.API.Listen)
	setString(&cfg.APIToken, fc.API.Token)
	setIntPtr(&cfg.APIRateLimit, fc.API.RateLimit)

	if fc.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *fc.Metrics.Enabled
	}

	setDuration(&cfg.ArchiveInterval, fc.ArchiveInterval)
}

func mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("PV_DATA", cfg.DataDir)
	cfg.DBPath = ParseString("PV_DB", cfg.DBPath)
	cfg.ProfileDir = ParseString("PV_PROFILES", cfg.ProfileDir)
	cfg.LogLevel = ParseString("PV_LOG_LEVEL", cfg.LogLevel)

	cfg.FetchTimeout = ParseDuration("PV_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.FetchRetries = ParseInt("PV_FETCH_RETRIES", cfg.FetchRetries)
	cfg.FetchBackoff = ParseDuration("PV_FETCH_BACKOFF", cfg.FetchBackoff)
	cfg.FetchMaxBackoff = ParseDuration("PV_FETCH_MAX_BACKOFF", cfg.FetchMaxBackoff)
	cfg.FetchRateLimit = ParseFloat("PV_FETCH_RATE_LIMIT", cfg.FetchRateLimit)
	cfg.FetchRateBurst = ParseInt("PV_FETCH_RATE_BURST", cfg.FetchRateBurst)
	cfg.UserAgent = ParseString("PV_USER_AGENT", cfg.UserAgent)
	cfg.ProxyURL = ParseString("PV_PROXY_URL", cfg.ProxyURL)
	cfg.InsecureFallback = ParseBool("PV_INSECURE_FALLBACK", cfg.InsecureFallback)

	cfg.MaxPages = ParseInt("PV_MAX_PAGES", cfg.MaxPages)
	cfg.AssetConcurrency = ParseInt("PV_ASSET_CONCURRENCY", cfg.AssetConcurrency)
	cfg.SnapshotEvery = ParseInt("PV_SNAPSHOT_EVERY", cfg.SnapshotEvery)

	cfg.StateBackend = ParseString("PV_STATE_BACKEND", cfg.StateBackend)
	cfg.StateDir = ParseString("PV_STATE_DIR", cfg.StateDir)

	cfg.CacheBackend = ParseString("PV_CACHE_BACKEND", cfg.CacheBackend)
	cfg.RedisAddr = ParseString("PV_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisDB = ParseInt("PV_REDIS_DB", cfg.RedisDB)
	cfg.CacheTTL = ParseDuration("PV_CACHE_TTL", cfg.CacheTTL)

	cfg.ListenAddr = ParseString("PV_LISTEN", cfg.ListenAddr)
	cfg.APIToken = ParseString("PV_API_TOKEN", cfg.APIToken)
	cfg.APIRateLimit = ParseInt("PV_API_RATE_LIMIT", cfg.APIRateLimit)

	cfg.MetricsEnabled = ParseBool("PV_METRICS", cfg.MetricsEnabled)

	cfg.ArchiveInterval = ParseDuration("PV_ARCHIVE_INTERVAL", cfg.ArchiveInterval)

	// Derived paths fall back under the data dir.
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "archive.sqlite")
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = filepath.Join(cfg.DataDir, "profiles")
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.DataDir, "state")
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setIntPtr(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v string) {
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
