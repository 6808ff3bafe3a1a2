// SPDX-License-Identifier: MIT

package cache

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// New creates a cache based on the configured backend.
func New(backend, redisAddr string, redisDB int, logger zerolog.Logger) (Cache, error) {
	switch backend {
	case "", "memory":
		return NewMemory(time.Minute), nil
	case "redis":
		return NewRedis(RedisConfig{Addr: redisAddr, DB: redisDB}, logger)
	case "none":
		return NewNoOp(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, redis, none)", backend)
	}
}
