// Package cache stores short-lived payloads (page view models, resolved principals)
// and supports dropping every entry recorded under a path.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the cache contract used by the web layer and the auth middleware.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetTagged stores value and records key under tag so InvalidateTag can drop it.
	SetTagged(ctx context.Context, tag, key string, value []byte, ttl time.Duration) error
	InvalidateTag(ctx context.Context, tag string) error
}

// PageKey builds the cache key for a rendered page: the path plus its canonical query.
func PageKey(path, rawQuery string) string {
	if rawQuery == "" {
		return "page:" + path
	}
	return "page:" + path + "?" + rawQuery
}

// PathTag is the tag every cached variant of path is recorded under.
func PathTag(path string) string {
	return "path:" + path
}
