// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/model"
	"github.com/luxfi/flashbid/pkg/store"
)

type createCampaignRequest struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	StartTime time.Time       `json:"start_time" binding:"required"`
	EndTime   time.Time       `json:"end_time" binding:"required"`
	Alpha     decimal.Decimal `json:"alpha" binding:"required"`
	Beta      decimal.Decimal `json:"beta" binding:"required"`
	Gamma     decimal.Decimal `json:"gamma" binding:"required"`
}

type campaignResponse struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	ProductID  uuid.UUID `json:"product_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Alpha      string    `json:"alpha"`
	Beta       string    `json:"beta"`
	Gamma      string    `json:"gamma"`
	Quota      int       `json:"quota"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type campaignDetailResponse struct {
	campaignResponse
	Product      productResponse  `json:"product"`
	CurrentStats kv.StatsSnapshot `json:"current_stats"`
}

func newCampaignResponse(cm *model.Campaign, now time.Time) campaignResponse {
	return campaignResponse{
		CampaignID: cm.CampaignID,
		ProductID:  cm.ProductID,
		StartTime:  cm.StartTime,
		EndTime:    cm.EndTime,
		Alpha:      cm.Alpha.String(),
		Beta:       cm.Beta.String(),
		Gamma:      cm.Gamma.String(),
		Quota:      cm.Quota,
		Status:     cm.StatusAt(now),
		CreatedAt:  cm.CreatedAt,
	}
}

func (s *Server) handleListCampaigns(c *gin.Context) {
	skip, limit := pagination(c)
	list, total, err := s.db.Campaigns(c.Request.Context(), skip, limit)
	if err != nil {
		storeError(c, err, "Campaigns")
		return
	}
	now := time.Now().UTC()
	out := make([]campaignResponse, 0, len(list))
	for _, cm := range list {
		out = append(out, newCampaignResponse(cm, now))
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": out, "total": total})
}

// handleGetCampaign returns the campaign with its product and live board
// statistics.
func (s *Server) handleGetCampaign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}
	ctx := c.Request.Context()
	campaign, product, err := s.db.CampaignWithProduct(ctx, id)
	if err != nil {
		storeError(c, err, "Campaign")
		return
	}

	c.JSON(http.StatusOK, campaignDetailResponse{
		campaignResponse: newCampaignResponse(campaign, time.Now().UTC()),
		Product:          newProductResponse(product),
		CurrentStats:     s.rankings.Stats(ctx, id, campaign.Quota),
	})
}

// handleCreateCampaign creates a campaign whose quota snapshots the product
// stock at this moment, then warms the campaign cache so the first bids avoid
// a database read.
func (s *Server) handleCreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}
	if !req.EndTime.After(req.StartTime) {
		detail(c, http.StatusBadRequest, "end_time must be after start_time")
		return
	}

	ctx := c.Request.Context()
	product, err := s.db.ProductByID(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		detail(c, http.StatusBadRequest, "Product not found")
		return
	}
	if err != nil {
		storeError(c, err, "Product")
		return
	}

	campaign := &model.Campaign{
		ProductID: product.ProductID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Alpha:     req.Alpha,
		Beta:      req.Beta,
		Gamma:     req.Gamma,
		Quota:     product.Stock,
	}
	if err := s.db.CreateCampaign(ctx, campaign); err != nil {
		storeError(c, err, "Campaign")
		return
	}
	s.campaigns.Warm(ctx, campaign, product)

	c.JSON(http.StatusCreated, newCampaignResponse(campaign, time.Now().UTC()))
}
