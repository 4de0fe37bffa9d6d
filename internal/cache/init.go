package cache

import (
	"log/slog"
	"os"
	"time"
)

// FromEnv selects a backend: REDIS_URL wins, then SQLITE_CACHE (a file
// path), then in-memory. Falls back to memory when a durable backend cannot
// be reached, the same degrade-don't-fail posture as the read paths.
// Returns the backend and its name for health reporting.
func FromEnv() (Backend, string) {
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		backend, err := NewRedisCache(redisURL, "nostrfeed:")
		if err == nil {
			slog.Info("redis cache initialized")
			return backend, "redis"
		}
		slog.Warn("redis connection failed, falling back", "error", err)
	}

	if dbPath := os.Getenv("SQLITE_CACHE"); dbPath != "" {
		backend, err := NewSqliteCache(dbPath)
		if err == nil {
			slog.Info("sqlite cache initialized", "path", dbPath)
			return backend, "sqlite"
		}
		slog.Warn("sqlite cache failed, falling back", "error", err)
	}

	slog.Info("initializing in-memory cache")
	return NewMemoryCache(10000, 2*time.Minute), "memory"
}
