// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

type fakeKV struct {
	hashes      map[string]map[string]string
	reads       int
	writes      int
	invalidated []string
}

func newFakeKV() *fakeKV {
	return &fakeKV{hashes: make(map[string]map[string]string)}
}

func (f *fakeKV) CachedCampaign(_ context.Context, id string) (map[string]string, error) {
	f.reads++
	return f.hashes[id], nil
}

func (f *fakeKV) CacheCampaign(_ context.Context, id string, fields map[string]string, _ time.Duration) error {
	f.writes++
	f.hashes[id] = fields
	return nil
}

func (f *fakeKV) InvalidateCampaign(_ context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	delete(f.hashes, id)
	return nil
}

type fakeDB struct {
	campaign *model.Campaign
	product  *model.Product
	queries  int
	err      error
}

func (f *fakeDB) CampaignWithProduct(_ context.Context, _ uuid.UUID) (*model.Campaign, *model.Product, error) {
	f.queries++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.campaign, f.product, nil
}

func testCampaign() (*model.Campaign, *model.Product) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	product := &model.Product{
		ProductID: uuid.New(),
		Name:      "limited sneaker",
		Stock:     100,
		MinPrice:  decimal.NewFromInt(500),
	}
	campaign := &model.Campaign{
		CampaignID: uuid.New(),
		ProductID:  product.ProductID,
		StartTime:  now.Add(-time.Minute),
		EndTime:    now.Add(time.Hour),
		Alpha:      decimal.NewFromFloat(1.0),
		Beta:       decimal.NewFromInt(1000),
		Gamma:      decimal.NewFromInt(100),
		Quota:      100,
		Status:     model.CampaignActive,
	}
	return campaign, product
}

func TestGetFallsThroughToStore(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	kv := newFakeKV()
	db := &fakeDB{campaign: campaign, product: product}
	c := New(kv, db, log.NoLog, nil)

	v, err := c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)
	require.Equal(campaign.CampaignID, v.CampaignID)
	require.Equal(product.ProductID, v.ProductID)
	require.Equal("limited sneaker", v.ProductName)
	require.InDelta(1.0, v.Alpha, 1e-9)
	require.InDelta(1000, v.Beta, 1e-9)
	require.InDelta(100, v.Gamma, 1e-9)
	require.Equal(100, v.Quota)
	require.InDelta(500, v.MinPrice, 1e-9)
	require.Equal(1, db.queries)

	// The store read populated both tiers.
	require.Equal(1, kv.writes)

	// Second read hits tier 1 without touching Redis or Postgres again.
	_, err = c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)
	require.Equal(1, db.queries)
	require.Equal(1, kv.reads)
}

func TestGetPromotesFromRedis(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	kv := newFakeKV()
	db := &fakeDB{campaign: campaign, product: product}

	// Pre-warm only the Redis tier, as a peer process would.
	warm := New(kv, db, log.NoLog, nil)
	warm.Warm(context.Background(), campaign, product)

	c := New(kv, db, log.NoLog, nil)
	v, err := c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)
	require.Equal(campaign.CampaignID, v.CampaignID)
	require.Equal(0, db.queries)
	require.Equal(campaign.StartTime.UTC(), v.StartTime.UTC())
	require.Equal(campaign.EndTime.UTC(), v.EndTime.UTC())
}

func TestGetCorruptHashFallsBack(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	kv := newFakeKV()
	kv.hashes[campaign.CampaignID.String()] = map[string]string{"alpha": "not-a-number"}
	db := &fakeDB{campaign: campaign, product: product}

	c := New(kv, db, log.NoLog, nil)
	v, err := c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)
	require.Equal(1, db.queries)
	require.Equal(campaign.CampaignID, v.CampaignID)
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	kv := newFakeKV()
	db := &fakeDB{campaign: campaign, product: product}
	c := New(kv, db, log.NoLog, nil)

	_, err := c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)

	require.NoError(c.Invalidate(context.Background(), campaign.CampaignID))
	require.Contains(kv.invalidated, campaign.CampaignID.String())

	_, err = c.Get(context.Background(), campaign.CampaignID)
	require.NoError(err)
	require.Equal(2, db.queries)
}

func TestViewStatusAt(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	v := viewFromModel(campaign, product)

	require.Equal(model.CampaignActive, v.StatusAt(time.Now()))
	require.Equal(model.CampaignPending, v.StatusAt(campaign.StartTime.Add(-time.Second)))
	require.Equal(model.CampaignEnded, v.StatusAt(campaign.EndTime.Add(time.Second)))

	v.Status = model.CampaignEnded
	require.Equal(model.CampaignEnded, v.StatusAt(campaign.StartTime))
}

func TestFieldsRoundTrip(t *testing.T) {
	require := require.New(t)

	campaign, product := testCampaign()
	v := viewFromModel(campaign, product)

	parsed, err := viewFromFields(campaign.CampaignID, fieldsFromView(v))
	require.NoError(err)
	require.Equal(v.ProductID, parsed.ProductID)
	require.Equal(v.Quota, parsed.Quota)
	require.InDelta(v.Alpha, parsed.Alpha, 1e-9)
	require.InDelta(v.MinPrice, parsed.MinPrice, 1e-9)
	require.True(v.StartTime.Equal(parsed.StartTime))
	require.True(v.EndTime.Equal(parsed.EndTime))
}
