// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

type fakeCampaigns struct {
	view *cache.CampaignView
	err  error
}

func (f *fakeCampaigns) Get(_ context.Context, _ uuid.UUID) (*cache.CampaignView, error) {
	return f.view, f.err
}

type fakeDB struct {
	mu      sync.Mutex
	bids    map[string]*model.Bid
	upserts int
}

func newFakeDB() *fakeDB {
	return &fakeDB{bids: make(map[string]*model.Bid)}
}

func (f *fakeDB) UpsertBid(_ context.Context, campaignID, userID, productID uuid.UUID, price, bidScore decimal.Decimal, elapsedMs int64) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++

	key := campaignID.String() + "/" + userID.String()
	if existing, ok := f.bids[key]; ok {
		existing.Price = price
		existing.Score = bidScore
		existing.TimeElapsedMs = elapsedMs
		existing.BidNumber++
		return existing, nil
	}
	row := &model.Bid{
		BidID:         uuid.New(),
		CampaignID:    campaignID,
		UserID:        userID,
		ProductID:     productID,
		Price:         price,
		Score:         bidScore,
		TimeElapsedMs: elapsedMs,
		BidNumber:     1,
		CreatedAt:     time.Now(),
	}
	f.bids[key] = row
	return row, nil
}

func (f *fakeDB) BidFor(_ context.Context, campaignID, userID uuid.UUID) (*model.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.bids[campaignID.String()+"/"+userID.String()]; ok {
		return row, nil
	}
	return nil, store.ErrNotFound
}

type fakeKV struct {
	mu       sync.Mutex
	rank     int
	rankings int
	bumped   []float64
	upserts  *fakeDB
	ordered  bool
}

func (f *fakeKV) UpdateRanking(_ context.Context, _, _ string, _, _ float64, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankings++
	// The leaderboard write must land only after the durable row exists.
	if f.upserts != nil {
		f.upserts.mu.Lock()
		f.ordered = f.upserts.upserts >= f.rankings
		f.upserts.mu.Unlock()
	}
	return f.rank, nil
}

func (f *fakeKV) BumpMaxPrice(_ context.Context, _ string, price float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bumped = append(f.bumped, price)
	return true, nil
}

func (f *fakeKV) bumps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bumped)
}

type fakeNotifier struct {
	events chan any
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(chan any, 8)}
}

func (f *fakeNotifier) SendToUser(_, _ string, event any) bool {
	f.events <- event
	return true
}

func activeView() *cache.CampaignView {
	now := time.Now()
	return &cache.CampaignView{
		CampaignID: uuid.New(),
		ProductID:  uuid.New(),
		StartTime:  now.Add(-10 * time.Second),
		EndTime:    now.Add(time.Hour),
		Alpha:      1.0,
		Beta:       1000,
		Gamma:      100,
		Quota:      5,
		Status:     model.CampaignActive,
		MinPrice:   800,
	}
}

func bidder() *model.User {
	return &model.User{
		UserID:   uuid.New(),
		Username: "alice",
		Weight:   decimal.NewFromFloat(2.0),
		Status:   model.UserActive,
	}
}

func TestSubmitAcceptsValidBid(t *testing.T) {
	require := require.New(t)

	view := activeView()
	db := newFakeDB()
	kv := &fakeKV{rank: 3, upserts: db}
	notify := newFakeNotifier()
	svc := New(&fakeCampaigns{view: view}, db, kv, notify, log.NoLog, nil)

	user := bidder()
	receipt, err := svc.Submit(context.Background(), view.CampaignID, user, decimal.NewFromInt(1200))
	require.NoError(err)
	require.Equal(3, receipt.Rank)
	require.Equal(1, receipt.Bid.BidNumber)
	require.True(receipt.Bid.Price.Equal(decimal.NewFromInt(1200)))
	require.True(kv.ordered)

	// Score = α·P + β/(T+1) + γ·W with P=1200, W=2.
	require.Greater(receipt.Score, 1400.0)
	require.Less(receipt.Score, 1400.0+1000.0)

	select {
	case raw := <-notify.events:
		event, ok := raw.(ws.Event)
		require.True(ok)
		require.Equal("bid_accepted", event.Event)
		data, ok := event.Data.(ws.BidAcceptedData)
		require.True(ok)
		require.Equal(receipt.Bid.BidID.String(), data.BidID)
		require.Equal(3, data.Rank)
	case <-time.After(time.Second):
		t.Fatal("no bid_accepted event delivered")
	}

	require.Eventually(func() bool { return kv.bumps() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSubmitOverwritesPreviousBid(t *testing.T) {
	require := require.New(t)

	view := activeView()
	db := newFakeDB()
	kv := &fakeKV{rank: 1}
	svc := New(&fakeCampaigns{view: view}, db, kv, nil, log.NoLog, nil)

	user := bidder()
	first, err := svc.Submit(context.Background(), view.CampaignID, user, decimal.NewFromInt(1000))
	require.NoError(err)
	second, err := svc.Submit(context.Background(), view.CampaignID, user, decimal.NewFromInt(1500))
	require.NoError(err)

	require.Equal(first.Bid.BidID, second.Bid.BidID)
	require.Equal(2, second.Bid.BidNumber)
	require.True(second.Bid.Price.Equal(decimal.NewFromInt(1500)))
	require.Equal(2, kv.rankings)
}

func TestSubmitRejectsUnknownCampaign(t *testing.T) {
	require := require.New(t)

	svc := New(&fakeCampaigns{err: store.ErrNotFound}, newFakeDB(), &fakeKV{}, nil, log.NoLog, nil)
	_, err := svc.Submit(context.Background(), uuid.New(), bidder(), decimal.NewFromInt(1000))
	require.ErrorIs(err, ErrCampaignNotFound)
}

func TestSubmitRejectsOutsideWindow(t *testing.T) {
	require := require.New(t)

	pending := activeView()
	pending.StartTime = time.Now().Add(time.Hour)
	pending.EndTime = time.Now().Add(2 * time.Hour)

	db := newFakeDB()
	kv := &fakeKV{}
	svc := New(&fakeCampaigns{view: pending}, db, kv, nil, log.NoLog, nil)

	_, err := svc.Submit(context.Background(), pending.CampaignID, bidder(), decimal.NewFromInt(1000))
	require.ErrorIs(err, ErrCampaignNotStarted)

	ended := activeView()
	ended.StartTime = time.Now().Add(-2 * time.Hour)
	ended.EndTime = time.Now().Add(-time.Hour)
	svc = New(&fakeCampaigns{view: ended}, db, kv, nil, log.NoLog, nil)

	_, err = svc.Submit(context.Background(), ended.CampaignID, bidder(), decimal.NewFromInt(1000))
	require.ErrorIs(err, ErrCampaignEnded)

	require.Zero(db.upserts)
	require.Zero(kv.rankings)
}

func TestSubmitRejectsPriceBelowFloor(t *testing.T) {
	require := require.New(t)

	view := activeView() // floor 800
	db := newFakeDB()
	kv := &fakeKV{}
	svc := New(&fakeCampaigns{view: view}, db, kv, nil, log.NoLog, nil)

	_, err := svc.Submit(context.Background(), view.CampaignID, bidder(), decimal.NewFromInt(500))
	require.ErrorIs(err, ErrPriceTooLow)
	require.Zero(db.upserts)
	require.Zero(kv.rankings)

	// Exactly the floor is accepted.
	_, err = svc.Submit(context.Background(), view.CampaignID, bidder(), decimal.NewFromInt(800))
	require.NoError(err)
}

func TestSubmitMeasuresElapsedFromStart(t *testing.T) {
	require := require.New(t)

	view := activeView()
	db := newFakeDB()
	svc := New(&fakeCampaigns{view: view}, db, &fakeKV{rank: 1}, nil, log.NoLog, nil)

	frozen := view.StartTime.Add(42 * time.Second)
	svc.now = func() time.Time { return frozen }

	receipt, err := svc.Submit(context.Background(), view.CampaignID, bidder(), decimal.NewFromInt(1000))
	require.NoError(err)
	require.Equal(int64(42000), receipt.Bid.TimeElapsedMs)
}

func TestHistoryReturnsStoredBid(t *testing.T) {
	require := require.New(t)

	view := activeView()
	db := newFakeDB()
	svc := New(&fakeCampaigns{view: view}, db, &fakeKV{rank: 1}, nil, log.NoLog, nil)

	user := bidder()
	_, err := svc.Submit(context.Background(), view.CampaignID, user, decimal.NewFromInt(900))
	require.NoError(err)
	_, err = svc.Submit(context.Background(), view.CampaignID, user, decimal.NewFromInt(950))
	require.NoError(err)

	history, err := svc.History(context.Background(), view.CampaignID, user.UserID)
	require.NoError(err)
	require.Len(history, 1)
	require.Equal(2, history[0].BidNumber)
	require.True(history[0].Price.Equal(decimal.NewFromInt(950)))

	history, err = svc.History(context.Background(), view.CampaignID, uuid.New())
	require.NoError(err)
	require.Empty(history)
}
