// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
)

const broadcastInterval = 2 * time.Second

// Ranking is the leaderboard read surface the broadcaster needs.
type Ranking interface {
	Leaderboard(ctx context.Context, campaignID string, k int) ([]kv.RankEntry, kv.Stats, error)
}

// Campaigns resolves campaign parameters, in particular the quota K.
type Campaigns interface {
	Get(ctx context.Context, id uuid.UUID) (*cache.CampaignView, error)
}

// Broadcaster periodically pushes a leaderboard snapshot to every active
// campaign room.
type Broadcaster struct {
	hub       *Hub
	ranking   Ranking
	campaigns Campaigns
	interval  time.Duration

	log log.Logger
	m   *metric.Metrics
}

// NewBroadcaster builds the loop. metrics may be nil in tests.
func NewBroadcaster(hub *Hub, ranking Ranking, campaigns Campaigns, logger log.Logger, m *metric.Metrics) *Broadcaster {
	return &Broadcaster{
		hub:       hub,
		ranking:   ranking,
		campaigns: campaigns,
		interval:  broadcastInterval,
		log:       logger,
		m:         m,
	}
}

// Run ticks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.log.Info("broadcast loop started")
	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcast loop stopped")
			return
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) {
	for _, campaignID := range b.hub.ActiveCampaigns() {
		if err := b.broadcastOne(ctx, campaignID); err != nil {
			b.log.Warn("broadcast snapshot failed",
				log.String("campaign", campaignID), log.Error(err))
		}
	}
}

func (b *Broadcaster) broadcastOne(ctx context.Context, campaignID string) error {
	id, err := uuid.Parse(campaignID)
	if err != nil {
		return err
	}
	view, err := b.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}

	entries, stats, err := b.ranking.Leaderboard(ctx, campaignID, view.Quota)
	if err != nil {
		return err
	}

	event := NewRankingUpdate(RankingUpdateData{
		CampaignID:        campaignID,
		TopK:              entries,
		TotalParticipants: stats.TotalParticipants,
		MinWinningScore:   stats.MinWinningScore,
		MaxScore:          stats.MaxScore,
		Timestamp:         time.Now().UTC(),
	})
	b.hub.Broadcast(campaignID, event)
	if b.m != nil {
		b.m.BroadcastsSent.Inc()
	}
	return nil
}
