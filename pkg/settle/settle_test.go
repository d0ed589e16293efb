// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/flashbid/pkg/inventory"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

type fakeDB struct {
	campaign  *model.Campaign
	bids      map[uuid.UUID]*model.Bid
	orders    []*model.Order
	ended     []uuid.UUID
	orderErrs int
}

func (f *fakeDB) CampaignByID(_ context.Context, id uuid.UUID) (*model.Campaign, error) {
	if f.campaign == nil || f.campaign.CampaignID != id {
		return nil, store.ErrNotFound
	}
	return f.campaign, nil
}

func (f *fakeDB) CampaignsDueForSettlement(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	if f.campaign != nil && f.campaign.Status != model.CampaignEnded && f.campaign.EndTime.Before(now) {
		return []*model.Campaign{f.campaign}, nil
	}
	return nil, nil
}

func (f *fakeDB) MarkCampaignEnded(_ context.Context, id uuid.UUID) error {
	f.ended = append(f.ended, id)
	if f.campaign != nil && f.campaign.CampaignID == id {
		f.campaign.Status = model.CampaignEnded
	}
	return nil
}

func (f *fakeDB) BidFor(_ context.Context, _, userID uuid.UUID) (*model.Bid, error) {
	if b, ok := f.bids[userID]; ok {
		return b, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeDB) CreateOrder(_ context.Context, o *model.Order) error {
	if f.orderErrs > 0 {
		f.orderErrs--
		return errors.New("insert failed")
	}
	for _, existing := range f.orders {
		if existing.CampaignID == o.CampaignID && existing.UserID == o.UserID {
			return store.ErrDuplicateOrder
		}
	}
	o.OrderID = uuid.New()
	o.CreatedAt = time.Now()
	f.orders = append(f.orders, o)
	return nil
}

func (f *fakeDB) OrderFor(_ context.Context, campaignID, userID uuid.UUID) (*model.Order, error) {
	for _, o := range f.orders {
		if o.CampaignID == campaignID && o.UserID == userID {
			return o, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeRanking struct {
	entries []kv.RankEntry
	askedK  int
}

func (f *fakeRanking) TopK(_ context.Context, _ string, k int) ([]kv.RankEntry, error) {
	f.askedK = k
	if len(f.entries) > k {
		return f.entries[:k], nil
	}
	return f.entries, nil
}

type fakeInventory struct {
	stock     int
	locked    map[uuid.UUID]bool
	decrs     int
	releases  int
	rollbacks int
}

func (f *fakeInventory) Decrement(_ context.Context, productID uuid.UUID, _ time.Duration) (string, error) {
	f.decrs++
	if f.locked[productID] {
		return "", inventory.ErrLocked
	}
	if f.stock < 1 {
		return "", inventory.ErrOutOfStock
	}
	f.stock--
	return uuid.NewString(), nil
}

func (f *fakeInventory) Release(_ context.Context, _ uuid.UUID, _ string) {
	f.releases++
}

func (f *fakeInventory) Rollback(_ context.Context, _ uuid.UUID) error {
	f.rollbacks++
	f.stock++
	return nil
}

type fakeNotifier struct {
	users  []string
	events map[string]any
}

func (f *fakeNotifier) ConnectedUsers(_ string) []string { return f.users }

func (f *fakeNotifier) SendToUser(_, userID string, event any) bool {
	if f.events == nil {
		f.events = make(map[string]any)
	}
	f.events[userID] = event
	return true
}

func fixture(quota, stock int, bidders int) (*fakeDB, *fakeRanking, *fakeInventory, []uuid.UUID) {
	campaign := &model.Campaign{
		CampaignID: uuid.New(),
		ProductID:  uuid.New(),
		StartTime:  time.Now().Add(-2 * time.Hour),
		EndTime:    time.Now().Add(-time.Hour),
		Quota:      quota,
		Status:     model.CampaignActive,
	}
	db := &fakeDB{campaign: campaign, bids: make(map[uuid.UUID]*model.Bid)}
	ranking := &fakeRanking{}
	users := make([]uuid.UUID, bidders)
	for i := range users {
		users[i] = uuid.New()
		price := decimal.NewFromInt(int64(2000 - i*100))
		db.bids[users[i]] = &model.Bid{
			BidID:      uuid.New(),
			CampaignID: campaign.CampaignID,
			UserID:     users[i],
			ProductID:  campaign.ProductID,
			Price:      price,
			Score:      price,
			BidNumber:  1,
		}
		ranking.entries = append(ranking.entries, kv.RankEntry{
			Rank:   i + 1,
			UserID: users[i].String(),
			Score:  float64(2000 - i*100),
			Price:  float64(2000 - i*100),
		})
	}
	inv := &fakeInventory{stock: stock, locked: make(map[uuid.UUID]bool)}
	return db, ranking, inv, users
}

func TestSettleCreatesOrdersForTopK(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, users := fixture(2, 2, 5)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(orders, 2)
	require.Equal(2, ranking.askedK)

	require.Equal(users[0], orders[0].UserID)
	require.Equal(1, orders[0].FinalRank)
	require.True(orders[0].FinalPrice.Equal(decimal.NewFromInt(2000)))
	require.Equal(model.OrderConfirmed, orders[0].Status)

	require.Equal(users[1], orders[1].UserID)
	require.Equal(2, orders[1].FinalRank)

	require.Equal(model.CampaignEnded, db.campaign.Status)
	require.Equal(0, inv.stock)
	require.Equal(inv.decrs, inv.releases)
}

func TestSettleIdempotentOnEndedCampaign(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, _ := fixture(2, 2, 3)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	first, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(first, 2)

	second, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Empty(second)
	require.Len(db.orders, 2)
	require.Len(db.ended, 1)
}

func TestSettleFewerBiddersThanQuota(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, _ := fixture(5, 5, 2)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(orders, 2)
	require.Equal(3, inv.stock)
}

func TestSettleSkipsOnStockExhaustion(t *testing.T) {
	require := require.New(t)

	// Quota says two winners but only one unit survived.
	db, ranking, inv, users := fixture(2, 1, 4)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(orders, 1)
	require.Equal(users[0], orders[0].UserID)

	// Rank 3 and 4 never got a slot; the campaign still ends.
	require.Equal(model.CampaignEnded, db.campaign.Status)
}

func TestSettleSkipsLockedProductWinner(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, _ := fixture(2, 2, 2)
	inv.locked[db.campaign.ProductID] = true
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Empty(orders)
	require.Equal(model.CampaignEnded, db.campaign.Status)
}

func TestSettleResumesAfterPartialRun(t *testing.T) {
	require := require.New(t)

	// A prior run recorded the rank-1 order and consumed its unit, then died
	// before flipping the campaign status. Stock 2 remains for ranks 2 and 3.
	db, ranking, inv, users := fixture(3, 2, 3)
	prior := &model.Order{
		OrderID:    uuid.New(),
		CampaignID: db.campaign.CampaignID,
		UserID:     users[0],
		ProductID:  db.campaign.ProductID,
		FinalPrice: decimal.NewFromInt(2000),
		FinalScore: decimal.NewFromInt(2000),
		FinalRank:  1,
		Status:     model.OrderConfirmed,
	}
	db.orders = append(db.orders, prior)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(orders, 3)
	require.Len(db.orders, 3)

	// The recorded winner is kept as-is, with no second decrement.
	require.Equal(prior.OrderID, orders[0].OrderID)
	require.Equal(2, inv.decrs)
	require.Equal(0, inv.stock)
	require.Equal(model.CampaignEnded, db.campaign.Status)
}

func TestSettleRollsBackStockWhenOrderInsertFails(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, users := fixture(2, 2, 2)
	db.orderErrs = 1
	svc := New(db, ranking, inv, nil, log.NoLog, nil)

	orders, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)

	// Rank 1's insert failed and its unit was handed back; rank 2 still wins.
	require.Len(orders, 1)
	require.Equal(users[1], orders[0].UserID)
	require.Equal(1, inv.rollbacks)
	require.Equal(1, inv.stock)
}

func TestSettleAnnouncesWinnersAndLosers(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, users := fixture(1, 1, 2)
	notify := &fakeNotifier{users: []string{users[0].String(), users[1].String()}}
	svc := New(db, ranking, inv, notify, log.NoLog, nil)

	_, err := svc.SettleCampaign(context.Background(), db.campaign.CampaignID)
	require.NoError(err)
	require.Len(notify.events, 2)

	winEvent, ok := notify.events[users[0].String()].(ws.Event)
	require.True(ok)
	require.Equal("campaign_ended", winEvent.Event)
	winData := winEvent.Data.(ws.CampaignEndedData)
	require.True(winData.IsWinner)
	require.NotNil(winData.FinalRank)
	require.Equal(1, *winData.FinalRank)
	require.NotNil(winData.FinalPrice)
	require.InDelta(2000, *winData.FinalPrice, 1e-9)

	loseEvent := notify.events[users[1].String()].(ws.Event)
	loseData := loseEvent.Data.(ws.CampaignEndedData)
	require.False(loseData.IsWinner)
	require.Nil(loseData.FinalRank)
}

func TestPollerSettlesDueCampaigns(t *testing.T) {
	require := require.New(t)

	db, ranking, inv, _ := fixture(2, 2, 3)
	svc := New(db, ranking, inv, nil, log.NoLog, nil)
	p := NewPoller(svc, log.NoLog)

	p.tick(context.Background())
	require.Equal(model.CampaignEnded, db.campaign.Status)
	require.Len(db.orders, 2)

	// A second tick finds nothing due.
	p.tick(context.Background())
	require.Len(db.orders, 2)
}
