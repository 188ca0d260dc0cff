package acl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultCacheTTL bounds how long a resolved access level may be served
// from cache after the last mutation it could observe.
const DefaultCacheTTL = 5 * time.Minute

const cacheMissSentinel = "NONE"

// AccessCache is a Redis-backed cache for resolved effective access
// levels. Invalidation is per centre: every mutation bumps the centre's
// generation counter, which is embedded in all value keys, so stale
// entries are orphaned rather than enumerated and deleted.
//
// A nil AccessCache is valid and caches nothing.
type AccessCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewAccessCache creates a cache layer over an existing Redis client.
func NewAccessCache(client *redis.Client, ttl time.Duration) *AccessCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &AccessCache{redis: client, ttl: ttl}
}

func (c *AccessCache) enabled() bool {
	return c != nil && c.redis != nil
}

func genKey(centreID int64) string {
	return fmt.Sprintf("acl:gen:%d", centreID)
}

// levelKey builds the value key for one (centre, requester, groups)
// resolution at the given generation. The group set is order-insensitive.
func levelKey(centreID, generation int64, identifier string, groups []string) string {
	sorted := make([]string, len(groups))
	copy(sorted, groups)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return fmt.Sprintf("acl:level:%d:%d:%s:%s", centreID, generation, identifier, hex.EncodeToString(sum[:8]))
}

func (c *AccessCache) generation(ctx context.Context, centreID int64) (int64, error) {
	gen, err := c.redis.Get(ctx, genKey(centreID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// noGeneration marks a lookup that never observed a generation counter,
// because the cache is disabled or Redis was unreachable. SetLevel
// refuses to write under it.
const noGeneration = int64(-1)

// GetLevel looks up a previously resolved level. The second return value
// reports whether the requester had any access, the third whether the
// cache held an answer at all. The final value is the generation the
// lookup ran under; callers pass it back to SetLevel so a fill races
// with Invalidate safely, landing in the orphaned old generation instead
// of overwriting the bump.
func (c *AccessCache) GetLevel(ctx context.Context, centreID int64, identifier string, groups []string) (AccessLevel, bool, bool, int64) {
	if !c.enabled() {
		return "", false, false, noGeneration
	}

	gen, err := c.generation(ctx, centreID)
	if err != nil {
		return "", false, false, noGeneration
	}

	val, err := c.redis.Get(ctx, levelKey(centreID, gen, identifier, groups)).Result()
	if err != nil {
		return "", false, false, gen
	}
	if val == cacheMissSentinel {
		return "", false, true, gen
	}
	level := AccessLevel(val)
	if !level.Valid() {
		return "", false, false, gen
	}
	return level, true, true, gen
}

// SetLevel records a resolved level, or the absence of access when found
// is false, under the generation the caller observed in GetLevel.
// Errors are deliberately dropped; the cache is advisory.
func (c *AccessCache) SetLevel(ctx context.Context, centreID int64, generation int64, identifier string, groups []string, level AccessLevel, found bool) {
	if !c.enabled() || generation < 0 {
		return
	}

	val := cacheMissSentinel
	if found {
		val = string(level)
	}
	c.redis.Set(ctx, levelKey(centreID, generation, identifier, groups), val, c.ttl)
}

// Invalidate discards every cached resolution for a centre by bumping its
// generation counter. Old entries expire on their own TTL.
func (c *AccessCache) Invalidate(ctx context.Context, centreID int64) error {
	if !c.enabled() {
		return nil
	}
	if err := c.redis.Incr(ctx, genKey(centreID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate access cache: %w", err)
	}
	return nil
}
