// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package settle turns a closed campaign's leaderboard into confirmed
// orders, at most quota-many, and flips the campaign to ended.
package settle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

// settleLockTTL is longer than the bid-path lock TTL; settlement holds the
// product lock across a durable round-trip.
const settleLockTTL = 5 * time.Second

// Ranking reads the final leaderboard. Ties on equal scores come back in the
// sorted set's deterministic member order.
type Ranking interface {
	TopK(ctx context.Context, campaignID string, k int) ([]kv.RankEntry, error)
}

// DB is the durable surface settlement needs.
type DB interface {
	CampaignByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	CampaignsDueForSettlement(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	MarkCampaignEnded(ctx context.Context, id uuid.UUID) error
	BidFor(ctx context.Context, campaignID, userID uuid.UUID) (*model.Bid, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	OrderFor(ctx context.Context, campaignID, userID uuid.UUID) (*model.Order, error)
}

// Inventory is the guarded stock decrement.
type Inventory interface {
	Decrement(ctx context.Context, productID uuid.UUID, lockTTL time.Duration) (string, error)
	Release(ctx context.Context, productID uuid.UUID, token string)
	Rollback(ctx context.Context, productID uuid.UUID) error
}

// Notifier fans the campaign_ended event out to subscribers.
type Notifier interface {
	ConnectedUsers(campaignID string) []string
	SendToUser(campaignID, userID string, event any) bool
}

// Service settles campaigns.
type Service struct {
	db      DB
	ranking Ranking
	inv     Inventory
	notify  Notifier
	log     log.Logger
	m       *metric.Metrics

	now func() time.Time
}

// New builds the settlement service. notify and metrics may be nil in tests.
func New(db DB, ranking Ranking, inv Inventory, notify Notifier, logger log.Logger, m *metric.Metrics) *Service {
	return &Service{
		db:      db,
		ranking: ranking,
		inv:     inv,
		notify:  notify,
		log:     logger,
		m:       m,
		now:     time.Now,
	}
}

// SettleCampaign materialises the top-K bidders as confirmed orders. K is the
// quota snapshotted at campaign creation; the live product stock is what gets
// drained. Re-running on an ended campaign returns an empty list.
//
// A winner whose stock acquisition or order insert fails is skipped; the slot
// is never reassigned to a lower-ranked bidder.
func (s *Service) SettleCampaign(ctx context.Context, campaignID uuid.UUID) ([]*model.Order, error) {
	started := s.now()

	campaign, err := s.db.CampaignByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignEnded {
		return nil, nil
	}

	winners, err := s.ranking.TopK(ctx, campaignID.String(), campaign.Quota)
	if err != nil {
		return nil, err
	}

	orders := make([]*model.Order, 0, len(winners))
	for _, winner := range winners {
		order, err := s.settleWinner(ctx, campaign, winner)
		if err != nil {
			s.log.Warn("winner skipped",
				log.String("campaign", campaignID.String()),
				log.String("user", winner.UserID),
				log.Int("rank", winner.Rank),
				log.Error(err))
			continue
		}
		orders = append(orders, order)
	}

	if err := s.db.MarkCampaignEnded(ctx, campaignID); err != nil {
		return orders, err
	}

	if s.m != nil {
		s.m.SettlementsRun.Inc()
		for range orders {
			s.m.OrdersCreated.Inc()
		}
		s.m.SettlementLength.Observe(time.Since(started).Seconds())
	}
	s.log.Info("campaign settled",
		log.String("campaign", campaignID.String()),
		log.Int("winners", len(winners)),
		log.Int("orders", len(orders)))

	s.announce(campaignID, orders)
	return orders, nil
}

func (s *Service) settleWinner(ctx context.Context, campaign *model.Campaign, winner kv.RankEntry) (*model.Order, error) {
	userID, err := uuid.Parse(winner.UserID)
	if err != nil {
		return nil, err
	}

	// A run that crashed before flipping the campaign status leaves orders
	// behind; resuming must keep those winners without consuming a second
	// stock unit.
	if existing, err := s.db.OrderFor(ctx, campaign.CampaignID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// Final price comes from the durable bid row, not the leaderboard hash.
	row, err := s.db.BidFor(ctx, campaign.CampaignID, userID)
	if err != nil {
		return nil, err
	}

	token, err := s.inv.Decrement(ctx, campaign.ProductID, settleLockTTL)
	if err != nil {
		return nil, err
	}
	defer s.inv.Release(ctx, campaign.ProductID, token)

	order := &model.Order{
		CampaignID: campaign.CampaignID,
		UserID:     userID,
		ProductID:  campaign.ProductID,
		FinalPrice: row.Price,
		FinalScore: decimal.NewFromFloat(winner.Score),
		FinalRank:  winner.Rank,
		Status:     model.OrderConfirmed,
	}
	if err := s.db.CreateOrder(ctx, order); err != nil {
		// The unit was consumed in both stores but no order accounts for
		// it; hand it back so later winners are not starved.
		if rbErr := s.inv.Rollback(ctx, campaign.ProductID); rbErr != nil {
			s.log.Error("stock rollback failed after order insert",
				log.String("campaign", campaign.CampaignID.String()),
				log.String("user", userID.String()), log.Error(rbErr))
		}
		if errors.Is(err, store.ErrDuplicateOrder) {
			// Lost a race with a concurrent settler; their row stands.
			if existing, ferr := s.db.OrderFor(ctx, campaign.CampaignID, userID); ferr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return order, nil
}

// announce pushes campaign_ended to every subscriber still in the room,
// flagging winners with their final numbers.
func (s *Service) announce(campaignID uuid.UUID, orders []*model.Order) {
	if s.notify == nil {
		return
	}
	id := campaignID.String()

	byUser := make(map[string]*model.Order, len(orders))
	for _, o := range orders {
		byUser[o.UserID.String()] = o
	}

	for _, userID := range s.notify.ConnectedUsers(id) {
		data := ws.CampaignEndedData{CampaignID: id}
		if o, ok := byUser[userID]; ok {
			rank := o.FinalRank
			bidScore := o.FinalScore.InexactFloat64()
			price := o.FinalPrice.InexactFloat64()
			data.IsWinner = true
			data.FinalRank = &rank
			data.FinalScore = &bidScore
			data.FinalPrice = &price
		}
		s.notify.SendToUser(id, userID, ws.NewCampaignEnded(data))
	}
}

// pollInterval is how often the poller looks for campaigns past their end.
const pollInterval = 10 * time.Second

// Poller drives settlement for campaigns whose window has closed.
type Poller struct {
	svc      *Service
	interval time.Duration
	log      log.Logger
}

// NewPoller builds the settlement poller.
func NewPoller(svc *Service, logger log.Logger) *Poller {
	return &Poller{svc: svc, interval: pollInterval, log: logger}
}

// Run ticks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("settlement poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("settlement poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	due, err := p.svc.db.CampaignsDueForSettlement(ctx, p.svc.now())
	if err != nil {
		p.log.Error("due-campaign scan failed", log.Error(err))
		return
	}
	for _, campaign := range due {
		if _, err := p.svc.SettleCampaign(ctx, campaign.CampaignID); err != nil {
			p.log.Error("settlement failed",
				log.String("campaign", campaign.CampaignID.String()), log.Error(err))
		}
	}
}
