// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userCacheTTL     = 120 * time.Second
	jwtCacheTTL      = 10 * time.Second
	statsSnapshotTTL = 5 * time.Second
)

// CacheCampaign writes the campaign parameter hash, optionally with a TTL
// (campaign duration plus buffer).
func (s *Store) CacheCampaign(ctx context.Context, campaignID string, fields map[string]string, ttl time.Duration) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, campaignKey(campaignID), fields)
	if ttl > 0 {
		pipe.Expire(ctx, campaignKey(campaignID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: cache campaign %s: %w", campaignID, err)
	}
	return nil
}

// CachedCampaign reads the parameter hash; nil map means cache miss.
func (s *Store) CachedCampaign(ctx context.Context, campaignID string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, campaignKey(campaignID)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: cached campaign %s: %w", campaignID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// InvalidateCampaign drops the campaign hash. Admin writers call this after
// mutating campaign rows.
func (s *Store) InvalidateCampaign(ctx context.Context, campaignID string) error {
	if err := s.rdb.Del(ctx, campaignKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("kv: invalidate campaign %s: %w", campaignID, err)
	}
	return nil
}

// BumpMaxPrice advances the campaign's monotone max-price cell. Only writes
// when the candidate is strictly greater than the stored value.
func (s *Store) BumpMaxPrice(ctx context.Context, campaignID string, price float64) (bool, error) {
	arg := strconv.FormatFloat(price, 'f', -1, 64)
	n, err := s.maxPrice.Run(ctx, s.rdb, []string{maxPriceKey(campaignID)}, arg).Int()
	if err != nil {
		return false, fmt.Errorf("kv: bump max price %s: %w", campaignID, err)
	}
	return n == 1, nil
}

// MaxPrice reads the cached max price; ok=false when unset.
func (s *Store) MaxPrice(ctx context.Context, campaignID string) (float64, bool, error) {
	v, err := s.rdb.Get(ctx, maxPriceKey(campaignID)).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("kv: max price %s: %w", campaignID, err)
	}
	return v, true, nil
}

// StatsSnapshot is the 5-second cached view served to hot stats readers.
type StatsSnapshot struct {
	TotalParticipants int64    `json:"total_participants"`
	MaxScore          *float64 `json:"max_score"`
	MinWinningScore   *float64 `json:"min_winning_score"`
}

// SetStatsSnapshot caches leaderboard stats for statsSnapshotTTL.
func (s *Store) SetStatsSnapshot(ctx context.Context, campaignID string, snap StatsSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("kv: marshal stats snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, statsSnapshotKey(campaignID), raw, statsSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("kv: set stats snapshot %s: %w", campaignID, err)
	}
	return nil
}

// GetStatsSnapshot returns the cached stats; ok=false on miss.
func (s *Store) GetStatsSnapshot(ctx context.Context, campaignID string) (StatsSnapshot, bool, error) {
	raw, err := s.rdb.Get(ctx, statsSnapshotKey(campaignID)).Bytes()
	if err == redis.Nil {
		return StatsSnapshot{}, false, nil
	}
	if err != nil {
		return StatsSnapshot{}, false, fmt.Errorf("kv: get stats snapshot %s: %w", campaignID, err)
	}
	var snap StatsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return StatsSnapshot{}, false, nil
	}
	return snap, true, nil
}

// CacheUser stores the user hash with a short TTL so authenticated requests
// skip the durable store.
func (s *Store) CacheUser(ctx context.Context, userID string, fields map[string]string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, userKey(userID), fields)
	pipe.Expire(ctx, userKey(userID), userCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: cache user %s: %w", userID, err)
	}
	return nil
}

// CachedUser reads the user hash; nil map on miss.
func (s *Store) CachedUser(ctx context.Context, userID string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: cached user %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// InvalidateUser drops the user hash. Called when user status changes.
func (s *Store) InvalidateUser(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("kv: invalidate user %s: %w", userID, err)
	}
	return nil
}

// CacheClaims stores decoded token claims keyed by a 16-hex-char token hash.
func (s *Store) CacheClaims(ctx context.Context, hash16 string, claims map[string]string) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, jwtKey(hash16), claims)
	pipe.Expire(ctx, jwtKey(hash16), jwtCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("kv: cache claims: %w", err)
	}
	return nil
}

// CachedClaims reads cached claims; nil map on miss.
func (s *Store) CachedClaims(ctx context.Context, hash16 string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, jwtKey(hash16)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: cached claims: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}
