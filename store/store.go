// Package store provides Redis-backed implementations of the external
// collaborator hooks the guard consumes: the jti blacklist predicate and
// the TOTP verify-counter cache used for replay protection. Both are thin
// adapters; the guard itself never persists anything.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultBlacklistPrefix = "aegis:blacklist:"
	defaultCounterPrefix   = "aegis:totp:counter:"
)

// Blacklist tracks revoked token ids in Redis. Entries carry a TTL so a
// revoked jti expires from the set once the token itself can no longer be
// refreshed.
type Blacklist struct {
	client *redis.Client
	prefix string
}

// NewBlacklist creates a Blacklist on the given client. An empty prefix
// selects the default key prefix.
func NewBlacklist(client *redis.Client, prefix string) *Blacklist {
	if prefix == "" {
		prefix = defaultBlacklistPrefix
	}
	return &Blacklist{client: client, prefix: prefix}
}

// Add revokes a token id for the given duration.
func (b *Blacklist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return b.client.Set(ctx, b.prefix+jti, "1", ttl).Err()
}

// Contains reports whether a token id has been revoked.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Hook adapts the blacklist to the guard's IsBlacklisted predicate. A
// backend failure reports the token as blacklisted: validation fails closed
// rather than accepting a possibly revoked token.
func (b *Blacklist) Hook() func(jti string) bool {
	return func(jti string) bool {
		revoked, err := b.Contains(context.Background(), jti)
		if err != nil {
			return true
		}
		return revoked
	}
}

// VerifyCounterCache persists the last accepted TOTP counter per user. It
// backs the optional per-user verify cache hooks; correctness across
// processes depends on this store, not on in-process synchronization.
type VerifyCounterCache struct {
	client *redis.Client
	prefix string
}

// NewVerifyCounterCache creates a VerifyCounterCache on the given client.
// An empty prefix selects the default key prefix.
func NewVerifyCounterCache(client *redis.Client, prefix string) *VerifyCounterCache {
	if prefix == "" {
		prefix = defaultCounterPrefix
	}
	return &VerifyCounterCache{client: client, prefix: prefix}
}

// Get returns the last accepted counter for a user, or -1 when none is
// recorded.
func (c *VerifyCounterCache) Get(ctx context.Context, userID string) (int64, error) {
	val, err := c.client.Get(ctx, c.prefix+userID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	counter, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return -1, err
	}
	return counter, nil
}

// Set records the last accepted counter for a user, expiring after the
// given number of seconds.
func (c *VerifyCounterCache) Set(ctx context.Context, userID string, counter, seconds int64) error {
	ttl := time.Duration(seconds) * time.Second
	return c.client.Set(ctx, c.prefix+userID, strconv.FormatInt(counter, 10), ttl).Err()
}
