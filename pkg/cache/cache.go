// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache serves campaign parameters through three tiers: an in-process
// TTL'd LRU, the shared Redis hash, and finally the durable store. Reads
// promote upward so the hot path for bid validation stays off Postgres.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/model"
)

const (
	localSize = 4096
	localTTL  = 2 * time.Second

	// Redis hash outlives the campaign window by this buffer so late
	// readers (settlement, history) still hit tier 2.
	redisTTLBuffer = time.Hour
)

// CampaignView is the pre-parsed campaign snapshot the bid path consumes.
// Numeric fields are plain float64 so score computation needs no further
// conversion.
type CampaignView struct {
	CampaignID  uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	StartTime   time.Time
	EndTime     time.Time
	Alpha       float64
	Beta        float64
	Gamma       float64
	Quota       int
	Status      string
	MinPrice    float64
}

// StatusAt derives the clock-based status, mirroring model.Campaign.
func (v *CampaignView) StatusAt(now time.Time) string {
	if v.Status == model.CampaignEnded {
		return model.CampaignEnded
	}
	switch {
	case now.Before(v.StartTime):
		return model.CampaignPending
	case now.Before(v.EndTime):
		return model.CampaignActive
	default:
		return model.CampaignEnded
	}
}

// KV is the Redis surface tier 2 needs.
type KV interface {
	CachedCampaign(ctx context.Context, campaignID string) (map[string]string, error)
	CacheCampaign(ctx context.Context, campaignID string, fields map[string]string, ttl time.Duration) error
	InvalidateCampaign(ctx context.Context, campaignID string) error
}

// DB is the durable-store surface tier 3 needs.
type DB interface {
	CampaignWithProduct(ctx context.Context, id uuid.UUID) (*model.Campaign, *model.Product, error)
}

// Campaigns is the layered campaign cache.
type Campaigns struct {
	local *lru.LRU[string, *CampaignView]
	kv    KV
	db    DB
	log   log.Logger
	m     *metric.Metrics
}

// New builds the cache. metrics may be nil in tests.
func New(kv KV, db DB, logger log.Logger, m *metric.Metrics) *Campaigns {
	return &Campaigns{
		local: lru.NewLRU[string, *CampaignView](localSize, nil, localTTL),
		kv:    kv,
		db:    db,
		log:   logger,
		m:     m,
	}
}

// Get resolves a campaign view, walking local, Redis, then Postgres.
func (c *Campaigns) Get(ctx context.Context, id uuid.UUID) (*CampaignView, error) {
	key := id.String()

	if v, ok := c.local.Get(key); ok {
		c.hit("local")
		return v, nil
	}

	fields, err := c.kv.CachedCampaign(ctx, key)
	if err != nil {
		// Redis trouble must not take down reads; fall through to the store.
		c.log.Warn("campaign cache redis read failed", log.String("campaign", key), log.Error(err))
	}
	if len(fields) > 0 {
		v, err := viewFromFields(id, fields)
		if err == nil {
			c.hit("redis")
			c.local.Add(key, v)
			return v, nil
		}
		c.log.Warn("campaign cache hash corrupt", log.String("campaign", key), log.Error(err))
	}

	campaign, product, err := c.db.CampaignWithProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	c.hit("store")
	v := viewFromModel(campaign, product)
	c.store(ctx, v)
	return v, nil
}

// Warm writes both cache tiers, called right after campaign creation so the
// first wave of bids never touches Postgres.
func (c *Campaigns) Warm(ctx context.Context, campaign *model.Campaign, product *model.Product) {
	c.store(ctx, viewFromModel(campaign, product))
}

// Invalidate drops both tiers after an admin mutation.
func (c *Campaigns) Invalidate(ctx context.Context, id uuid.UUID) error {
	key := id.String()
	c.local.Remove(key)
	return c.kv.InvalidateCampaign(ctx, key)
}

func (c *Campaigns) store(ctx context.Context, v *CampaignView) {
	key := v.CampaignID.String()
	c.local.Add(key, v)

	ttl := time.Until(v.EndTime) + redisTTLBuffer
	if ttl < redisTTLBuffer {
		ttl = redisTTLBuffer
	}
	if err := c.kv.CacheCampaign(ctx, key, fieldsFromView(v), ttl); err != nil {
		c.log.Warn("campaign cache redis write failed", log.String("campaign", key), log.Error(err))
	}
}

func (c *Campaigns) hit(tier string) {
	if c.m != nil {
		c.m.CampaignCacheHits.WithLabelValues(tier).Inc()
	}
}

func viewFromModel(campaign *model.Campaign, product *model.Product) *CampaignView {
	return &CampaignView{
		CampaignID:  campaign.CampaignID,
		ProductID:   campaign.ProductID,
		ProductName: product.Name,
		StartTime:   campaign.StartTime,
		EndTime:     campaign.EndTime,
		Alpha:       campaign.Alpha.InexactFloat64(),
		Beta:        campaign.Beta.InexactFloat64(),
		Gamma:       campaign.Gamma.InexactFloat64(),
		Quota:       campaign.Quota,
		Status:      campaign.Status,
		MinPrice:    product.MinPrice.InexactFloat64(),
	}
}

func fieldsFromView(v *CampaignView) map[string]string {
	return map[string]string{
		"product_id":   v.ProductID.String(),
		"product_name": v.ProductName,
		"start_time":   v.StartTime.UTC().Format(time.RFC3339Nano),
		"end_time":     v.EndTime.UTC().Format(time.RFC3339Nano),
		"alpha":        strconv.FormatFloat(v.Alpha, 'f', -1, 64),
		"beta":         strconv.FormatFloat(v.Beta, 'f', -1, 64),
		"gamma":        strconv.FormatFloat(v.Gamma, 'f', -1, 64),
		"quota":        strconv.Itoa(v.Quota),
		"status":       v.Status,
		"min_price":    strconv.FormatFloat(v.MinPrice, 'f', -1, 64),
	}
}

func viewFromFields(id uuid.UUID, fields map[string]string) (*CampaignView, error) {
	v := &CampaignView{CampaignID: id, ProductName: fields["product_name"], Status: fields["status"]}

	productID, err := uuid.Parse(fields["product_id"])
	if err != nil {
		return nil, fmt.Errorf("cache: bad product_id: %w", err)
	}
	v.ProductID = productID

	if v.StartTime, err = time.Parse(time.RFC3339Nano, fields["start_time"]); err != nil {
		return nil, fmt.Errorf("cache: bad start_time: %w", err)
	}
	if v.EndTime, err = time.Parse(time.RFC3339Nano, fields["end_time"]); err != nil {
		return nil, fmt.Errorf("cache: bad end_time: %w", err)
	}
	if v.Alpha, err = strconv.ParseFloat(fields["alpha"], 64); err != nil {
		return nil, fmt.Errorf("cache: bad alpha: %w", err)
	}
	if v.Beta, err = strconv.ParseFloat(fields["beta"], 64); err != nil {
		return nil, fmt.Errorf("cache: bad beta: %w", err)
	}
	if v.Gamma, err = strconv.ParseFloat(fields["gamma"], 64); err != nil {
		return nil, fmt.Errorf("cache: bad gamma: %w", err)
	}
	if v.Quota, err = strconv.Atoi(fields["quota"]); err != nil {
		return nil, fmt.Errorf("cache: bad quota: %w", err)
	}
	if v.MinPrice, err = strconv.ParseFloat(fields["min_price"], 64); err != nil {
		return nil, fmt.Errorf("cache: bad min_price: %w", err)
	}
	return v, nil
}

// MinPriceDecimal returns the floor price with currency precision restored.
func (v *CampaignView) MinPriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(v.MinPrice)
}
