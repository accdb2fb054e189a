package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/platinummonkey/bookrank/pkg/period"
	"github.com/platinummonkey/bookrank/pkg/storage"
)

// CacheTTL bounds how long cached ranking reads are served
type CacheTTL struct {
	Entries time.Duration
	Latest  time.Duration
}

// CacheTTLFrom reads the cache TTLs from the storage config, defaulting zero values
func CacheTTLFrom(config storage.Config) CacheTTL {
	def := storage.DefaultConfig()
	ttl := CacheTTL{Entries: config.CacheEntriesTTL, Latest: config.CacheLatestTTL}
	if ttl.Entries <= 0 {
		ttl.Entries = def.CacheEntriesTTL
	}
	if ttl.Latest <= 0 {
		ttl.Latest = def.CacheLatestTTL
	}
	return ttl
}

// A fill only lands if no replace bumped the series generation since the
// reader sampled it; otherwise the reader's rows may predate the replace.
var (
	fillHashScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
return 1`)

	fillStringScript = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1`)
)

// RankingCache is a Redis read-through cache in front of a RankingStore.
// Entry lists are cached per period in a hash keyed by limit, so replacing a
// period invalidates every cached limit with one DEL.
type RankingCache struct {
	store   storage.RankingStore
	redis   redis.Cmdable
	ttl     CacheTTL
	metrics *observability.Metrics
}

// NewRankingCache wraps store with a Redis cache
func NewRankingCache(store storage.RankingStore, client redis.Cmdable, ttl CacheTTL, metrics *observability.Metrics) *RankingCache {
	return &RankingCache{
		store:   store,
		redis:   client,
		ttl:     CacheTTLFrom(storage.Config{CacheEntriesTTL: ttl.Entries, CacheLatestTTL: ttl.Latest}),
		metrics: metrics,
	}
}

func entriesKey(p storage.RankingPeriod) string {
	return fmt.Sprintf("ranking:cache:%s:%s:%s:%s", p.RankType, p.StatType, period.Format(p.Start), period.Format(p.End))
}

func latestKey(rankType, statType string) string {
	return fmt.Sprintf("ranking:latest:%s:%s", rankType, statType)
}

func generationKey(rankType, statType string) string {
	return fmt.Sprintf("ranking:gen:%s:%s", rankType, statType)
}

// ReplaceRanking writes through to the store and then drops cached reads for the period
func (c *RankingCache) ReplaceRanking(ctx context.Context, p storage.RankingPeriod, entries []storage.RankingEntry) error {
	if err := c.store.ReplaceRanking(ctx, p, entries); err != nil {
		return err
	}
	return c.Invalidate(ctx, p)
}

// ListEntries serves from cache when possible
func (c *RankingCache) ListEntries(ctx context.Context, p storage.RankingPeriod, limit int) ([]storage.RankingEntry, error) {
	key := entriesKey(p)
	field := strconv.Itoa(limit)

	cached, err := c.redis.HGet(ctx, key, field).Result()
	if err == nil {
		var entries []storage.RankingEntry
		if err := json.Unmarshal([]byte(cached), &entries); err == nil {
			c.metrics.RecordCacheLookup("ranking_entries", true)
			return entries, nil
		}
	}
	c.metrics.RecordCacheLookup("ranking_entries", false)

	gen, genErr := c.generation(ctx, p.RankType, p.StatType)

	entries, err := c.store.ListEntries(ctx, p, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil && genErr == nil {
		fillHashScript.Run(ctx, c.redis,
			[]string{generationKey(p.RankType, p.StatType), key},
			gen, field, data, c.ttl.Entries.Milliseconds())
	}
	return entries, nil
}

type cachedPeriod struct {
	Found bool      `json:"found"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LatestPeriod serves from cache when possible; "nothing stored" is cached too
func (c *RankingCache) LatestPeriod(ctx context.Context, rankType, statType string) (storage.RankingPeriod, bool, error) {
	key := latestKey(rankType, statType)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var cp cachedPeriod
		if err := json.Unmarshal([]byte(cached), &cp); err == nil {
			c.metrics.RecordCacheLookup("ranking_latest", true)
			if !cp.Found {
				return storage.RankingPeriod{}, false, nil
			}
			return storage.RankingPeriod{RankType: rankType, StatType: statType, Start: cp.Start, End: cp.End}, true, nil
		}
	}
	c.metrics.RecordCacheLookup("ranking_latest", false)

	gen, genErr := c.generation(ctx, rankType, statType)

	p, ok, err := c.store.LatestPeriod(ctx, rankType, statType)
	if err != nil {
		return storage.RankingPeriod{}, false, err
	}

	if data, err := json.Marshal(cachedPeriod{Found: ok, Start: p.Start, End: p.End}); err == nil && genErr == nil {
		fillStringScript.Run(ctx, c.redis,
			[]string{generationKey(rankType, statType), key},
			gen, data, c.ttl.Latest.Milliseconds())
	}
	return p, ok, nil
}

// Invalidate bumps the series generation and removes cached reads for a period
// and the latest-period pointer of its series
func (c *RankingCache) Invalidate(ctx context.Context, p storage.RankingPeriod) error {
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(p.RankType, p.StatType))
		pipe.Del(ctx, entriesKey(p), latestKey(p.RankType, p.StatType))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate ranking cache: %w", err)
	}
	return nil
}

// generation samples the series generation before a store read; a missing key is "0"
func (c *RankingCache) generation(ctx context.Context, rankType, statType string) (string, error) {
	gen, err := c.redis.Get(ctx, generationKey(rankType, statType)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}
