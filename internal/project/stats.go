package project

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	statsCacheKey = "praxisdesk:projects:stats"
	statsCacheTTL = 30 * time.Second
)

// Stats holds aggregate project counts.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByStage  map[string]int `json:"by_stage"`
}

// StatsSource computes stats from storage.
type StatsSource interface {
	StatusCounts(ctx context.Context) (Stats, error)
}

// StatsCache serves project stats through a short-lived Redis cache.
// Concurrent misses collapse into one recomputation via singleflight.
type StatsCache struct {
	source StatsSource
	rdb    *redis.Client
	group  singleflight.Group
	logger *slog.Logger
}

// NewStatsCache constructs a StatsCache.
func NewStatsCache(source StatsSource, rdb *redis.Client, logger *slog.Logger) *StatsCache {
	return &StatsCache{source: source, rdb: rdb, logger: logger}
}

// Get returns the cached stats, recomputing on a miss. Cache errors fall
// through to the source; the endpoint never fails because Redis is down.
func (c *StatsCache) Get(ctx context.Context) (Stats, error) {
	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, statsCacheKey).Bytes()
		if err == nil {
			var stats Stats
			if json.Unmarshal(raw, &stats) == nil {
				return stats, nil
			}
		} else if err != redis.Nil {
			c.logger.Warn("stats cache read failed", slog.Any("error", err))
		}
	}

	v, err, _ := c.group.Do(statsCacheKey, func() (interface{}, error) {
		stats, err := c.source.StatusCounts(ctx)
		if err != nil {
			return Stats{}, err
		}
		if c.rdb != nil {
			if raw, err := json.Marshal(stats); err == nil {
				if err := c.rdb.Set(ctx, statsCacheKey, raw, statsCacheTTL).Err(); err != nil {
					c.logger.Warn("stats cache write failed", slog.Any("error", err))
				}
			}
		}
		return stats, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// Invalidate drops the cached entry after a mutation. Best effort.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, statsCacheKey).Err(); err != nil {
		c.logger.Warn("stats cache invalidate failed", slog.Any("error", err))
	}
}
