// Package kv abstracts the hot key-value tier. The chat core and the
// archive worker share one Store; atomicity is per-operation.
package kv

import (
	"context"
	"time"
)

// Value kinds reported by Type.
const (
	KindNone   = "none"
	KindString = "string"
	KindHash   = "hash"
	KindSet    = "set"
	KindList   = "list"
)

// Store is the hot-store abstraction. Negative list indices count from
// the tail, as in Redis.
type Store interface {
	// Strings
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Keyspace
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Type(ctx context.Context, key string) (string, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SCard(ctx context.Context, key string) (int64, error)

	// Lists
	RPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LSet(ctx context.Context, key string, index int64, value string) error
	LLen(ctx context.Context, key string) (int64, error)

	// Close releases the underlying client.
	Close() error
}
