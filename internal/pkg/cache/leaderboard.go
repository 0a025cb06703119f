// Package cache provides an optional Redis snapshot of the leaderboard.
// The ledger never reads from it; it only saves repeated ranking queries.
//
// Snapshots are keyed by a generation counter that the ledger bumps after
// every committed change. A reader takes the generation before it loads the
// ranking, so a snapshot is only ever visible under a generation that is not
// older than the data it holds.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"points-ledger-bot/internal/config"
	"points-ledger-bot/internal/model"
)

const versionKey = "leaderboard:version"

// NewRedisClient connects to Redis. Returns nil when no address is
// configured or the server cannot be reached; callers continue without cache.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info().Msg("Redis address not configured, leaderboard cache disabled")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis connection failed, continuing without cache")
		_ = rdb.Close()
		return nil
	}

	log.Info().Str("addr", cfg.Addr).Msg("Redis connection established")
	return rdb
}

// LeaderboardSource loads the ranking from the ledger.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, limit int) ([]*model.LeaderboardEntry, error)
}

// LeaderboardCache stores JSON snapshots of the top N users with a TTL.
// A nil cache, or one without a client, always misses.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeaderboardCache creates a new LeaderboardCache instance.
func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func key(version int64, limit int) string {
	return fmt.Sprintf("leaderboard:v%d:top:%d", version, limit)
}

// Enabled reports whether the cache is backed by a Redis client.
func (c *LeaderboardCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Invalidate moves readers to a new generation. Snapshots of older
// generations are never read again and expire with their TTL.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("failed to bump leaderboard version: %w", err)
	}
	return nil
}

// version returns the current generation. A missing counter is generation 0.
func (c *LeaderboardCache) version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard version: %w", err)
	}
	return v, nil
}

func (c *LeaderboardCache) get(ctx context.Context, version int64, limit int) ([]*model.LeaderboardEntry, bool) {
	raw, err := c.client.Get(ctx, key(version, limit)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Int("limit", limit).Msg("Leaderboard cache read failed")
		}
		return nil, false
	}

	var entries []*model.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Int("limit", limit).Msg("Discarding corrupt leaderboard snapshot")
		return nil, false
	}

	return entries, true
}

func (c *LeaderboardCache) set(ctx context.Context, version int64, limit int, entries []*model.LeaderboardEntry) error {
	if entries == nil {
		entries = []*model.LeaderboardEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}

	if err := c.client.Set(ctx, key(version, limit), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store leaderboard: %w", err)
	}
	return nil
}

// Refresh loads the ranking from src and stores it under the current
// generation.
func (c *LeaderboardCache) Refresh(ctx context.Context, limit int, src LeaderboardSource) error {
	if !c.Enabled() {
		_, err := src.Leaderboard(ctx, limit)
		return err
	}

	version, err := c.version(ctx)
	if err != nil {
		return err
	}

	entries, err := src.Leaderboard(ctx, limit)
	if err != nil {
		return err
	}
	return c.set(ctx, version, limit, entries)
}

// Fetch serves the snapshot of the current generation when present and
// otherwise loads from src, storing the result. Redis failures fall back to
// src; a failed store is logged and the fresh ranking is still returned.
func (c *LeaderboardCache) Fetch(ctx context.Context, limit int, src LeaderboardSource) ([]*model.LeaderboardEntry, error) {
	if !c.Enabled() {
		return src.Leaderboard(ctx, limit)
	}

	version, err := c.version(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Leaderboard cache unavailable, reading from store")
		return src.Leaderboard(ctx, limit)
	}

	if entries, ok := c.get(ctx, version, limit); ok {
		return entries, nil
	}

	entries, err := src.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}

	if err := c.set(ctx, version, limit, entries); err != nil {
		log.Warn().Err(err).Int("limit", limit).Msg("Leaderboard cache write failed")
	}
	return entries, nil
}
