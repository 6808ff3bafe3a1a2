// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Validate checks the resolved configuration for consistency.
// All problems are reported at once via errors.Join.
func Validate(cfg AppConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, ValidationError{"dataDir", "must not be empty"})
	}
	if cfg.FetchTimeout <= 0 {
		errs = append(errs, ValidationError{"fetch.timeout", "must be positive"})
	}
	if cfg.FetchRetries < 0 {
		errs = append(errs, ValidationError{"fetch.retries", "must not be negative"})
	}
	if cfg.FetchBackoff <= 0 {
		errs = append(errs, ValidationError{"fetch.backoff", "must be positive"})
	}
	if cfg.FetchMaxBackoff < cfg.FetchBackoff {
		errs = append(errs, ValidationError{"fetch.maxBackoff", "must not be below fetch.backoff"})
	}
	if cfg.FetchRateLimit <= 0 {
		errs = append(errs, ValidationError{"fetch.rateLimit", "must be positive"})
	}
	if cfg.FetchRateBurst < 1 {
		errs = append(errs, ValidationError{"fetch.rateBurst", "must be at least 1"})
	}
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{"fetch.proxyUrl", "must be an absolute URL"})
		}
	}
	if cfg.MaxPages < 1 {
		errs = append(errs, ValidationError{"crawl.maxPages", "must be at least 1"})
	}
	if cfg.AssetConcurrency < 1 || cfg.AssetConcurrency > 32 {
		errs = append(errs, ValidationError{"crawl.assetConcurrency", "must be in [1,32]"})
	}
	if cfg.SnapshotEvery < 1 {
		errs = append(errs, ValidationError{"crawl.snapshotEvery", "must be at least 1"})
	}

	switch cfg.StateBackend {
	case "memory", "badger":
	default:
		errs = append(errs, ValidationError{"state.backend", fmt.Sprintf("unknown backend %q (supported: memory, badger)", cfg.StateBackend)})
	}

	switch cfg.CacheBackend {
	case "memory", "none":
	case "redis":
		if cfg.RedisAddr == "" {
			errs = append(errs, ValidationError{"cache.redisAddr", "required for redis backend"})
		}
	default:
		errs = append(errs, ValidationError{"cache.backend", fmt.Sprintf("unknown backend %q (supported: memory, redis, none)", cfg.CacheBackend)})
	}

	if cfg.ListenAddr == "" {
		errs = append(errs, ValidationError{"api.listen", "must not be empty"})
	}
	if cfg.APIRateLimit < 1 {
		errs = append(errs, ValidationError{"api.rateLimit", "must be at least 1"})
	}
	if cfg.ArchiveInterval < 0 {
		errs = append(errs, ValidationError{"archiveInterval", "must not be negative"})
	}

	return errors.Join(errs...)
}
