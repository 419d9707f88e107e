// Package cache provides a TTL cache for analysis results, with a Redis
// backend for deployments and an in-memory fallback when Redis is not
// configured. Values are stored as JSON.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("key not found in cache")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("cache is closed")
)

// Cache stores JSON-serializable values with a per-entry TTL.
type Cache interface {
	// Set marshals value as JSON and stores it under key for ttl.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get unmarshals the value stored under key into value, or returns
	// ErrNotFound.
	Get(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// AnalysisKey derives the cache key for a skill analysis from its exact
// parameter triple. Parameters are normalized so trivially different
// spellings of the same request share an entry.
func AnalysisKey(query, jobRole, location string) string {
	return derivedKey("analysis", query, jobRole, location)
}

// ComparisonKey derives the cache key for a role comparison.
func ComparisonKey(roleA, roleB, location string) string {
	return derivedKey("comparison", roleA, roleB, location)
}

// TrendingKey derives the cache key for a trending-skills report.
func TrendingKey(days int) string {
	return derivedKey("trending", strconv.Itoa(days))
}

func derivedKey(kind string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	return "lmi:" + kind + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
