// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package kv is the Redis adapter backing the leaderboard, inventory
// counters, distributed locks and the short-TTL caches.
//
// Key schema:
//
//	bid:{campaignID}                    - sorted set, member = user id, score = bid score
//	bid_details:{campaignID}:{userID}   - hash {price, username}
//	stock:{productID}                   - integer counter
//	lock:product:{productID}            - owner token string with TTL
//	campaign:{campaignID}               - hash of campaign parameters
//	campaign:{campaignID}:max_price     - monotone max price string
//	campaign_stats_snapshot:{campaignID} - JSON stats, TTL 5s
//	user:{userID}                       - hash cache, TTL 120s
//	jwt:{hash16}                        - decoded claims, TTL 10s
//	ratelimit:ip:{ip}, ratelimit:user:{hash} - sliding-window sorted sets
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/flashbid/pkg/log"
)

const (
	dialTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second
)

// Store wraps a Redis client with the engine's primitives.
type Store struct {
	rdb *redis.Client
	log log.Logger

	decrStock   *redis.Script
	releaseLock *redis.Script
	maxPrice    *redis.Script
	rateLimit   *redis.Script
}

// New connects to Redis and verifies the connection.
func New(url string, logger log.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kv: parse url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv: ping: %w", err)
	}

	return NewWithClient(rdb, logger), nil
}

// NewWithClient builds a Store around an existing client. Used by tests.
func NewWithClient(rdb *redis.Client, logger log.Logger) *Store {
	return &Store{
		rdb:         rdb,
		log:         logger,
		decrStock:   redis.NewScript(decrStockLua),
		releaseLock: redis.NewScript(releaseLockLua),
		maxPrice:    redis.NewScript(maxPriceLua),
		rateLimit:   redis.NewScript(rateLimitLua),
	}
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

// Healthy reports whether Redis answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.rdb.Ping(ctx).Err() == nil
}

func rankingKey(campaignID string) string { return "bid:" + campaignID }
func detailsKey(campaignID, userID string) string {
	return "bid_details:" + campaignID + ":" + userID
}
func stockKey(productID string) string     { return "stock:" + productID }
func lockKey(productID string) string      { return "lock:product:" + productID }
func campaignKey(campaignID string) string { return "campaign:" + campaignID }
func maxPriceKey(campaignID string) string {
	return "campaign:" + campaignID + ":max_price"
}
func statsSnapshotKey(campaignID string) string {
	return "campaign_stats_snapshot:" + campaignID
}
func userKey(userID string) string { return "user:" + userID }
func jwtKey(hash16 string) string  { return "jwt:" + hash16 }
