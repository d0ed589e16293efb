// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleRankings serves the public top-K leaderboard.
func (s *Server) handleRankings(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	board, err := s.rankings.Board(c.Request.Context(), campaignID)
	if err != nil {
		storeError(c, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, board)
}

// handleMyRank serves the caller's own standing in a campaign.
func (s *Server) handleMyRank(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("campaign_id"))
	if err != nil {
		detail(c, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	rank, err := s.rankings.MyRank(c.Request.Context(), campaignID, currentUser(c).UserID)
	if err != nil {
		storeError(c, err, "Campaign")
		return
	}
	c.JSON(http.StatusOK, rank)
}
