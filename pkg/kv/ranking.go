// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RankEntry is one leaderboard row hydrated with display details.
type RankEntry struct {
	Rank     int     `json:"rank"`
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Score    float64 `json:"score"`
	Price    float64 `json:"price"`
}

// Stats summarises a campaign leaderboard.
type Stats struct {
	TotalParticipants int64
	MaxScore          *float64
	MinWinningScore   *float64
}

// UpdateRanking records an accepted bid in one round-trip: the sorted-set
// member, the detail hash, and the read-back of the user's fresh rank travel
// in a single pipeline so the returned rank reflects this very update.
// The returned rank is 1-based.
func (s *Store) UpdateRanking(ctx context.Context, campaignID, userID string, bidScore, price float64, username string) (int, error) {
	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, rankingKey(campaignID), redis.Z{Score: bidScore, Member: userID})
	pipe.HSet(ctx, detailsKey(campaignID, userID), map[string]string{
		"price":    strconv.FormatFloat(price, 'f', -1, 64),
		"username": username,
	})
	rankCmd := pipe.ZRevRank(ctx, rankingKey(campaignID), userID)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv: update ranking %s/%s: %w", campaignID, userID, err)
	}
	return int(rankCmd.Val()) + 1, nil
}

// TopK returns the K highest-scoring entries in rank order. Detail hashes are
// fetched in one batched pipeline to avoid an N+1 round-trip pattern.
// Ties are returned in Redis's sorted-set order, which is deterministic for
// equal scores (reverse lexicographic member order under ZREVRANGE).
func (s *Store) TopK(ctx context.Context, campaignID string, k int) ([]RankEntry, error) {
	if k <= 0 {
		return nil, nil
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, rankingKey(campaignID), 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: top-k %s: %w", campaignID, err)
	}
	if len(zs) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	detailCmds := make([]*redis.MapStringStringCmd, len(zs))
	for i, z := range zs {
		userID, _ := z.Member.(string)
		detailCmds[i] = pipe.HGetAll(ctx, detailsKey(campaignID, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("kv: top-k details %s: %w", campaignID, err)
	}

	entries := make([]RankEntry, 0, len(zs))
	for i, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		e := RankEntry{
			Rank:   i + 1,
			UserID: userID,
			Score:  z.Score,
		}
		if details, err := detailCmds[i].Result(); err == nil {
			if p, ok := details["price"]; ok {
				e.Price, _ = strconv.ParseFloat(p, 64)
			}
			e.Username = details["username"]
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Leaderboard fetches the top-K entries and the summary stats in exactly two
// pipelined round-trips: the first carries the ranked range, the cardinality
// and the boundary scores; the second carries the detail hashes for the
// returned members.
func (s *Store) Leaderboard(ctx context.Context, campaignID string, k int) ([]RankEntry, Stats, error) {
	key := rankingKey(campaignID)

	pipe := s.rdb.Pipeline()
	cardCmd := pipe.ZCard(ctx, key)
	var topCmd *redis.ZSliceCmd
	if k > 0 {
		topCmd = pipe.ZRevRangeWithScores(ctx, key, 0, int64(k-1))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, Stats{}, fmt.Errorf("kv: leaderboard %s: %w", campaignID, err)
	}

	st := Stats{TotalParticipants: cardCmd.Val()}
	var zs []redis.Z
	if topCmd != nil {
		zs = topCmd.Val()
	}
	if len(zs) > 0 {
		top := zs[0].Score
		st.MaxScore = &top
		if len(zs) == k {
			kth := zs[len(zs)-1].Score
			st.MinWinningScore = &kth
		}
	}
	if len(zs) == 0 {
		return nil, st, nil
	}

	detailPipe := s.rdb.Pipeline()
	detailCmds := make([]*redis.MapStringStringCmd, len(zs))
	for i, z := range zs {
		userID, _ := z.Member.(string)
		detailCmds[i] = detailPipe.HGetAll(ctx, detailsKey(campaignID, userID))
	}
	if _, err := detailPipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, Stats{}, fmt.Errorf("kv: leaderboard details %s: %w", campaignID, err)
	}

	entries := make([]RankEntry, 0, len(zs))
	for i, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		e := RankEntry{Rank: i + 1, UserID: userID, Score: z.Score}
		if details, err := detailCmds[i].Result(); err == nil {
			if p, ok := details["price"]; ok {
				e.Price, _ = strconv.ParseFloat(p, 64)
			}
			e.Username = details["username"]
		}
		entries = append(entries, e)
	}
	return entries, st, nil
}

// UserRank returns the user's 1-based rank, or ok=false when the user has no
// leaderboard entry.
func (s *Store) UserRank(ctx context.Context, campaignID, userID string) (int, bool, error) {
	rank, err := s.rdb.ZRevRank(ctx, rankingKey(campaignID), userID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("kv: user rank %s/%s: %w", campaignID, userID, err)
	}
	return int(rank) + 1, true, nil
}

// UserScore returns the user's current score, or ok=false when absent.
func (s *Store) UserScore(ctx context.Context, campaignID, userID string) (float64, bool, error) {
	sc, err := s.rdb.ZScore(ctx, rankingKey(campaignID), userID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("kv: user score %s/%s: %w", campaignID, userID, err)
	}
	return sc, true, nil
}

// TotalParticipants returns the cardinality of the ranking set.
func (s *Store) TotalParticipants(ctx context.Context, campaignID string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, rankingKey(campaignID)).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: participants %s: %w", campaignID, err)
	}
	return n, nil
}

// StatsBatch fetches participant count, the top score and the Kth score in a
// single pipeline round-trip.
func (s *Store) StatsBatch(ctx context.Context, campaignID string, k int) (Stats, error) {
	key := rankingKey(campaignID)

	pipe := s.rdb.Pipeline()
	cardCmd := pipe.ZCard(ctx, key)
	topCmd := pipe.ZRevRangeWithScores(ctx, key, 0, 0)
	var kthCmd *redis.ZSliceCmd
	if k > 0 {
		kthCmd = pipe.ZRevRangeWithScores(ctx, key, int64(k-1), int64(k-1))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("kv: stats %s: %w", campaignID, err)
	}

	st := Stats{TotalParticipants: cardCmd.Val()}
	if top := topCmd.Val(); len(top) > 0 {
		v := top[0].Score
		st.MaxScore = &v
	}
	if kthCmd != nil {
		if kth := kthCmd.Val(); len(kth) > 0 {
			v := kth[0].Score
			st.MinWinningScore = &v
		}
	}
	return st, nil
}
