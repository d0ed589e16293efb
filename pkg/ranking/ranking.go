// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ranking serves leaderboard reads: the public top-K board and a
// user's own position. Hot stats reads go through a short-TTL snapshot; a
// Redis outage degrades to durable counts instead of failing.
package ranking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
)

// KV is the leaderboard read surface.
type KV interface {
	TopK(ctx context.Context, campaignID string, k int) ([]kv.RankEntry, error)
	StatsBatch(ctx context.Context, campaignID string, k int) (kv.Stats, error)
	UserRank(ctx context.Context, campaignID, userID string) (int, bool, error)
	UserScore(ctx context.Context, campaignID, userID string) (float64, bool, error)
	TotalParticipants(ctx context.Context, campaignID string) (int64, error)
	GetStatsSnapshot(ctx context.Context, campaignID string) (kv.StatsSnapshot, bool, error)
	SetStatsSnapshot(ctx context.Context, campaignID string, snap kv.StatsSnapshot) error
}

// DB backs the degraded stats path when Redis is unavailable.
type DB interface {
	CampaignBidCount(ctx context.Context, campaignID uuid.UUID) (int, error)
	MaxBidPrice(ctx context.Context, campaignID uuid.UUID) (decimal.Decimal, bool, error)
}

// Campaigns resolves campaign views, in particular the quota K.
type Campaigns interface {
	Get(ctx context.Context, id uuid.UUID) (*cache.CampaignView, error)
}

// Board is the public leaderboard response.
type Board struct {
	CampaignID        uuid.UUID      `json:"campaign_id"`
	Rankings          []kv.RankEntry `json:"rankings"`
	TotalParticipants int64          `json:"total_participants"`
	MinWinningScore   *float64       `json:"min_winning_score"`
	MaxScore          *float64       `json:"max_score"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// UserRank is one user's view of their own standing.
type UserRank struct {
	CampaignID        uuid.UUID `json:"campaign_id"`
	UserID            uuid.UUID `json:"user_id"`
	Rank              *int      `json:"rank"`
	Score             *float64  `json:"score"`
	IsWinning         bool      `json:"is_winning"`
	TotalParticipants int64     `json:"total_participants"`
}

// Service answers leaderboard queries.
type Service struct {
	kv        KV
	db        DB
	campaigns Campaigns
	log       log.Logger
}

// New builds the ranking service.
func New(kv KV, db DB, campaigns Campaigns, logger log.Logger) *Service {
	return &Service{kv: kv, db: db, campaigns: campaigns, log: logger}
}

// Board returns the top-K board plus stats for a campaign. The campaign view
// resolves through the layered cache; a missing campaign surfaces its error.
func (s *Service) Board(ctx context.Context, campaignID uuid.UUID) (*Board, error) {
	view, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	id := campaignID.String()
	entries, err := s.kv.TopK(ctx, id, view.Quota)
	if err != nil {
		s.log.Warn("leaderboard read failed, serving degraded board",
			log.String("campaign", id), log.Error(err))
		entries = nil
	}

	stats := s.stats(ctx, campaignID, view.Quota)
	return &Board{
		CampaignID:        campaignID,
		Rankings:          entries,
		TotalParticipants: stats.TotalParticipants,
		MinWinningScore:   stats.MinWinningScore,
		MaxScore:          stats.MaxScore,
		UpdatedAt:         time.Now().UTC(),
	}, nil
}

// MyRank returns the caller's standing; rank and score are nil when the user
// has not bid.
func (s *Service) MyRank(ctx context.Context, campaignID, userID uuid.UUID) (*UserRank, error) {
	view, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	id := campaignID.String()
	uid := userID.String()

	out := &UserRank{CampaignID: campaignID, UserID: userID}

	if rank, ok, err := s.kv.UserRank(ctx, id, uid); err != nil {
		return nil, err
	} else if ok {
		out.Rank = &rank
		out.IsWinning = rank <= view.Quota
	}
	if bidScore, ok, err := s.kv.UserScore(ctx, id, uid); err != nil {
		return nil, err
	} else if ok {
		out.Score = &bidScore
	}

	total, err := s.kv.TotalParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	out.TotalParticipants = total
	return out, nil
}

// Stats returns the board statistics for a campaign with quota k, served from
// the short-TTL snapshot when fresh.
func (s *Service) Stats(ctx context.Context, campaignID uuid.UUID, k int) kv.StatsSnapshot {
	return s.stats(ctx, campaignID, k)
}

// stats serves the 5-second snapshot when fresh, recomputes it otherwise,
// and degrades to durable counts when Redis is down.
func (s *Service) stats(ctx context.Context, campaignID uuid.UUID, k int) kv.StatsSnapshot {
	id := campaignID.String()

	if snap, ok, err := s.kv.GetStatsSnapshot(ctx, id); err == nil && ok {
		return snap
	}

	live, err := s.kv.StatsBatch(ctx, id, k)
	if err != nil {
		return s.durableStats(ctx, campaignID)
	}
	snap := kv.StatsSnapshot{
		TotalParticipants: live.TotalParticipants,
		MaxScore:          live.MaxScore,
		MinWinningScore:   live.MinWinningScore,
	}
	if err := s.kv.SetStatsSnapshot(ctx, id, snap); err != nil {
		s.log.Warn("stats snapshot write failed", log.String("campaign", id), log.Error(err))
	}
	return snap
}

// durableStats is the degraded path: participant count from the bid table and
// the highest accepted price standing in for the top score.
func (s *Service) durableStats(ctx context.Context, campaignID uuid.UUID) kv.StatsSnapshot {
	var snap kv.StatsSnapshot

	count, err := s.db.CampaignBidCount(ctx, campaignID)
	if err != nil {
		s.log.Error("durable stats fallback failed",
			log.String("campaign", campaignID.String()), log.Error(err))
		return snap
	}
	snap.TotalParticipants = int64(count)

	if maxPrice, ok, err := s.db.MaxBidPrice(ctx, campaignID); err == nil && ok {
		v := maxPrice.InexactFloat64()
		snap.MaxScore = &v
	}
	return snap
}
