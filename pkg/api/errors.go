// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/flashbid/pkg/auth"
	"github.com/luxfi/flashbid/pkg/bid"
	"github.com/luxfi/flashbid/pkg/store"
)

// coded is the {code,message} error body used for domain rejections.
func coded(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// detail is the {detail} body used for auth and infrastructure failures.
func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

// bidError maps submission errors onto the public taxonomy.
func bidError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bid.ErrCampaignNotFound):
		detail(c, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, bid.ErrCampaignNotStarted):
		coded(c, http.StatusForbidden, "CAMPAIGN_NOT_STARTED", "Campaign has not started yet")
	case errors.Is(err, bid.ErrCampaignEnded):
		coded(c, http.StatusForbidden, "CAMPAIGN_ENDED", "Campaign has ended")
	case errors.Is(err, bid.ErrPriceTooLow):
		coded(c, http.StatusBadRequest, "PRICE_TOO_LOW", "Price is below the minimum")
	default:
		detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	}
}

// authError maps credential and token failures.
func authError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		detail(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, auth.ErrUserDisabled):
		detail(c, http.StatusForbidden, "User account is not active")
	case errors.Is(err, auth.ErrAdminRequired):
		detail(c, http.StatusForbidden, "Admin privileges required")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUserNotFound):
		detail(c, http.StatusUnauthorized, "Invalid authentication token")
	default:
		detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
	}
}

// storeError maps durable lookups; not-found becomes a 404.
func storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		detail(c, http.StatusNotFound, what+" not found")
		return
	}
	detail(c, http.StatusServiceUnavailable, "Service temporarily unavailable")
}
