// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bid implements the hot submission path: validate against the
// campaign window and floor price, score, durably upsert, then publish to
// the leaderboard.
package bid

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/score"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

var (
	ErrCampaignNotFound   = errors.New("bid: campaign not found")
	ErrCampaignNotStarted = errors.New("bid: campaign has not started")
	ErrCampaignEnded      = errors.New("bid: campaign has ended")
	ErrPriceTooLow        = errors.New("bid: price below minimum")
)

// Campaigns resolves campaign views through the layered cache.
type Campaigns interface {
	Get(ctx context.Context, id uuid.UUID) (*cache.CampaignView, error)
}

// DB is the durable bid surface.
type DB interface {
	UpsertBid(ctx context.Context, campaignID, userID, productID uuid.UUID, price, bidScore decimal.Decimal, elapsedMs int64) (*model.Bid, error)
	BidFor(ctx context.Context, campaignID, userID uuid.UUID) (*model.Bid, error)
}

// KV is the leaderboard write surface.
type KV interface {
	UpdateRanking(ctx context.Context, campaignID, userID string, bidScore, price float64, username string) (int, error)
	BumpMaxPrice(ctx context.Context, campaignID string, price float64) (bool, error)
}

// Notifier pushes per-bid acknowledgements, best-effort.
type Notifier interface {
	SendToUser(campaignID, userID string, event any) bool
}

// Receipt is what an accepted bid returns to the caller.
type Receipt struct {
	Bid   *model.Bid
	Rank  int
	Score float64
}

// Service coordinates the submission path.
type Service struct {
	campaigns Campaigns
	db        DB
	kv        KV
	notify    Notifier
	log       log.Logger
	m         *metric.Metrics

	now func() time.Time
}

// New builds the bid service. notify and metrics may be nil in tests.
func New(campaigns Campaigns, db DB, kv KV, notify Notifier, logger log.Logger, m *metric.Metrics) *Service {
	return &Service{
		campaigns: campaigns,
		db:        db,
		kv:        kv,
		notify:    notify,
		log:       logger,
		m:         m,
		now:       time.Now,
	}
}

// Submit validates, scores and records a bid, returning the bid row and the
// submitter's fresh 1-based rank.
//
// The durable upsert commits before the leaderboard write. A crash between
// the two leaves the bid table as ground truth; the sorted set can be rebuilt
// from it.
func (s *Service) Submit(ctx context.Context, campaignID uuid.UUID, user *model.User, price decimal.Decimal) (*Receipt, error) {
	started := s.now()
	defer func() {
		if s.m != nil {
			s.m.BidLatency.Observe(time.Since(started).Seconds())
		}
	}()

	view, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, s.reject(ErrCampaignNotFound, "campaign_not_found")
		}
		return nil, err
	}

	now := s.now()
	switch view.StatusAt(now) {
	case model.CampaignPending:
		return nil, s.reject(ErrCampaignNotStarted, "campaign_not_started")
	case model.CampaignEnded:
		return nil, s.reject(ErrCampaignEnded, "campaign_ended")
	}

	if price.LessThan(view.MinPriceDecimal()) {
		return nil, s.reject(ErrPriceTooLow, "price_too_low")
	}

	elapsedMs := now.Sub(view.StartTime).Milliseconds()
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	bidScore := score.Compute(price.InexactFloat64(), elapsedMs, user.Weight.InexactFloat64(),
		score.Coefficients{Alpha: view.Alpha, Beta: view.Beta, Gamma: view.Gamma})

	row, err := s.db.UpsertBid(ctx, campaignID, user.UserID, view.ProductID,
		price, decimal.NewFromFloat(bidScore), elapsedMs)
	if err != nil {
		return nil, err
	}
	if s.m != nil {
		s.m.BidsUpserted.Inc()
	}

	rank, err := s.kv.UpdateRanking(ctx, campaignID.String(), user.UserID.String(),
		bidScore, price.InexactFloat64(), user.Username)
	if err != nil {
		// The durable row exists; the leaderboard entry will be refreshed
		// by the user's next bid or a rebuild. Surface the failure.
		return nil, err
	}

	s.publishAsync(campaignID, user.UserID, row, bidScore, rank, price)

	if s.m != nil {
		s.m.BidsAccepted.Inc()
	}
	return &Receipt{Bid: row, Rank: rank, Score: bidScore}, nil
}

// History returns the user's stored bid for a campaign. The upsert model
// keeps a single row; bid_number records how many acceptances it absorbed.
func (s *Service) History(ctx context.Context, campaignID, userID uuid.UUID) ([]*model.Bid, error) {
	row, err := s.db.BidFor(ctx, campaignID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []*model.Bid{row}, nil
}

// publishAsync fires the max-price bump and the acknowledgement push off the
// request path.
func (s *Service) publishAsync(campaignID, userID uuid.UUID, row *model.Bid, bidScore float64, rank int, price decimal.Decimal) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		bumped, err := s.kv.BumpMaxPrice(ctx, campaignID.String(), price.InexactFloat64())
		if err != nil {
			s.log.Warn("max price bump failed",
				log.String("campaign", campaignID.String()), log.Error(err))
		} else if bumped && s.m != nil {
			s.m.MaxPriceBumps.Inc()
		}

		if s.notify != nil {
			s.notify.SendToUser(campaignID.String(), userID.String(), ws.NewBidAccepted(ws.BidAcceptedData{
				BidID:         row.BidID.String(),
				CampaignID:    campaignID.String(),
				Price:         price.InexactFloat64(),
				Score:         bidScore,
				Rank:          rank,
				TimeElapsedMs: row.TimeElapsedMs,
				Timestamp:     time.Now().UTC(),
			}))
		}
	}()
}

func (s *Service) reject(err error, reason string) error {
	if s.m != nil {
		s.m.BidsRejected.WithLabelValues(reason).Inc()
	}
	return err
}
