/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache caches rendered IPTV output (M3U playlists, XMLTV guides).
// Redis is used when configured and reachable; otherwise a small in-process
// map serves the same role, so callers never branch on availability.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTLs for rendered output.
const (
	DefaultEPGTTL      = 5 * time.Minute
	DefaultPlaylistTTL = 5 * time.Minute
)

// Key prefixes.
const (
	keyEPG      = "prevue:cache:epg:"      // + variant key
	keyPlaylist = "prevue:cache:playlist:" // + variant key
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EPGTTL      time.Duration
	PlaylistTTL time.Duration

	// DisableOnError trips the circuit breaker on the first Redis error and
	// falls back to the in-memory store for the rest of the process lifetime.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		EPGTTL:         DefaultEPGTTL,
		PlaylistTTL:    DefaultPlaylistTTL,
		DisableOnError: true,
	}
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache provides Redis-backed output caching with in-memory fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
	mem      map[string]memEntry
}

// New creates a cache. A missing or unreachable Redis is not an error; the
// in-memory fallback takes over.
func New(cfg Config, logger zerolog.Logger) *Cache {
	c := &Cache{
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
		mem:    make(map[string]memEntry),
	}
	if cfg.EPGTTL <= 0 {
		c.config.EPGTTL = DefaultEPGTTL
	}
	if cfg.PlaylistTTL <= 0 {
		c.config.PlaylistTTL = DefaultPlaylistTTL
	}

	if cfg.RedisAddr == "" {
		c.disabled = true
		return c
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unavailable, using in-memory output cache")
		c.disabled = true
		return c
	}

	c.logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis output cache initialized")
	c.client = client
	return c
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Cache) redisAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}
	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")
	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling Redis cache, switching to in-memory fallback")
	}
}

// GetEPG returns a cached XMLTV document for the variant key.
func (c *Cache) GetEPG(ctx context.Context, key string) ([]byte, bool) {
	return c.get(ctx, keyEPG+key)
}

// SetEPG caches a rendered XMLTV document.
func (c *Cache) SetEPG(ctx context.Context, key string, data []byte) {
	c.set(ctx, keyEPG+key, data, c.config.EPGTTL)
}

// GetPlaylist returns a cached M3U playlist for the variant key.
func (c *Cache) GetPlaylist(ctx context.Context, key string) ([]byte, bool) {
	return c.get(ctx, keyPlaylist+key)
}

// SetPlaylist caches a rendered M3U playlist.
func (c *Cache) SetPlaylist(ctx context.Context, key string, data []byte) {
	c.set(ctx, keyPlaylist+key, data, c.config.PlaylistTTL)
}

// InvalidateOutputs drops every cached rendering. Called after channel
// regeneration so clients never see a stale lineup for the full TTL.
func (c *Cache) InvalidateOutputs(ctx context.Context) {
	c.mu.Lock()
	c.mem = make(map[string]memEntry)
	c.mu.Unlock()

	if !c.redisAvailable() {
		return
	}
	for _, prefix := range []string{keyEPG, keyPlaylist} {
		iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				c.handleError(err, "invalidate")
				return
			}
		}
		if err := iter.Err(); err != nil {
			c.handleError(err, "invalidate_scan")
			return
		}
	}
}

func (c *Cache) get(ctx context.Context, key string) ([]byte, bool) {
	if c.redisAvailable() {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return data, true
		}
		if err != redis.Nil {
			c.handleError(err, "get")
		}
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *Cache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.redisAvailable() {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			c.handleError(err, "set")
		}
		return
	}

	c.mu.Lock()
	// Opportunistic sweep keeps the fallback map from growing unbounded.
	now := time.Now()
	for k, e := range c.mem {
		if now.After(e.expiresAt) {
			delete(c.mem, k)
		}
	}
	c.mem[key] = memEntry{data: data, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
}
