// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luxfi/flashbid/pkg/model"
)

type submitBidRequest struct {
	CampaignID uuid.UUID       `json:"campaign_id" binding:"required"`
	Price      decimal.Decimal `json:"price" binding:"required"`
}

type bidResponse struct {
	BidID         uuid.UUID `json:"bid_id"`
	CampaignID    uuid.UUID `json:"campaign_id"`
	UserID        uuid.UUID `json:"user_id"`
	Price         string    `json:"price"`
	Score         string    `json:"score"`
	TimeElapsedMs int64     `json:"time_elapsed_ms"`
	BidNumber     int       `json:"bid_number"`
	CreatedAt     time.Time `json:"created_at"`
}

func newBidResponse(b *model.Bid) bidResponse {
	return bidResponse{
		BidID:         b.BidID,
		CampaignID:    b.CampaignID,
		UserID:        b.UserID,
		Price:         b.Price.String(),
		Score:         b.Score.String(),
		TimeElapsedMs: b.TimeElapsedMs,
		BidNumber:     b.BidNumber,
		CreatedAt:     b.CreatedAt,
	}
}

type bidReceiptResponse struct {
	bidResponse
	Rank int `json:"rank"`
}

// handleSubmitBid scores and accepts a bid, replying with the bid's current
// rank on the leaderboard.
func (s *Server) handleSubmitBid(c *gin.Context) {
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := s.bids.Submit(c.Request.Context(), req.CampaignID, currentUser(c), req.Price)
	if err != nil {
		bidError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bidReceiptResponse{
		bidResponse: newBidResponse(receipt.Bid),
		Rank:        receipt.Rank,
	})
}

// handleBidHistory returns the caller's accepted bid in a campaign. The list
// holds at most one row; bid_number records how many times it was overwritten.
func (s *Server) handleBidHistory(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	bids, err := s.bids.History(c.Request.Context(), campaignID, currentUser(c).UserID)
	if err != nil {
		storeError(c, err, "Bids")
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, newBidResponse(b))
	}
	c.JSON(http.StatusOK, gin.H{"bids": out, "total": len(out)})
}
