// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

type orderResponse struct {
	OrderID    uuid.UUID `json:"order_id"`
	CampaignID uuid.UUID `json:"campaign_id"`
	UserID     uuid.UUID `json:"user_id"`
	ProductID  uuid.UUID `json:"product_id"`
	FinalPrice string    `json:"final_price"`
	FinalScore string    `json:"final_score"`
	FinalRank  int       `json:"final_rank"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		OrderID:    o.OrderID,
		CampaignID: o.CampaignID,
		UserID:     o.UserID,
		ProductID:  o.ProductID,
		FinalPrice: o.FinalPrice.String(),
		FinalScore: o.FinalScore.String(),
		FinalRank:  o.FinalRank,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	}
}

// handleMyOrders lists the caller's orders, newest first.
func (s *Server) handleMyOrders(c *gin.Context) {
	skip, limit := pagination(c)
	orders, total, err := s.db.OrdersByUser(c.Request.Context(), currentUser(c).UserID, skip, limit)
	if err != nil {
		storeError(c, err, "Orders")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "total": total})
}

// handleCampaignOrders is the admin reconciliation view: all orders of a
// campaign plus a consistency verdict against the quota and remaining stock.
func (s *Server) handleCampaignOrders(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	ctx := c.Request.Context()
	campaign, product, err := s.db.CampaignWithProduct(ctx, campaignID)
	if err != nil {
		storeError(c, err, "Campaign")
		return
	}
	orders, err := s.db.OrdersByCampaign(ctx, campaignID)
	if err != nil {
		storeError(c, err, "Orders")
		return
	}

	// Every order consumed exactly one unit of the quota snapshot, so the
	// live stock must equal quota minus orders sold.
	expected := campaign.Quota - len(orders)
	if expected < 0 {
		expected = 0
	}
	consistent := len(orders) <= campaign.Quota && product.Stock == expected
	if !consistent {
		s.log.Error("order and stock reconciliation mismatch",
			log.String("campaign", campaignID.String()),
			log.Int("orders", len(orders)),
			log.Int("stock", product.Stock),
			log.Int("quota", campaign.Quota))
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":        out,
		"total":         len(out),
		"stock":         product.Stock,
		"is_consistent": consistent,
	})
}
