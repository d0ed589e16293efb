// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/model"
)

const userContextKey = "flashbid.user"

// Per-second sliding-window limits.
const (
	ipRateLimit   = 100
	userRateLimit = 10
	rateWindow    = time.Second
)

// RateLimiter is the scripted check-and-add in Redis.
type RateLimiter interface {
	AllowRate(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
}

// bearerToken extracts the bearer credential, empty when absent.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return header[7:]
	}
	return ""
}

// rateIdentity hashes a token into the per-user rate key suffix. The raw
// token never becomes a Redis key.
func rateIdentity(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

// rateLimit rejects callers over the per-IP window and, for authenticated
// requests, the tighter per-user window. A Redis outage fails open.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := s.limiter.AllowRate(c.Request.Context(),
			kv.RateLimitIP+c.ClientIP(), ipRateLimit, rateWindow)
		if err != nil {
			s.log.Warn("rate limiter unavailable", log.Error(err))
			c.Next()
			return
		}
		if !allowed {
			s.rateLimited(c, "ip", retryAfter, "Too many requests from this IP")
			return
		}

		if token := bearerToken(c); token != "" {
			allowed, retryAfter, err = s.limiter.AllowRate(c.Request.Context(),
				kv.RateLimitUser+rateIdentity(token), userRateLimit, rateWindow)
			if err != nil {
				s.log.Warn("rate limiter unavailable", log.Error(err))
				c.Next()
				return
			}
			if !allowed {
				s.rateLimited(c, "user", retryAfter, "Too many requests for this user")
				return
			}
		}
		c.Next()
	}
}

func (s *Server) rateLimited(c *gin.Context, scope string, retryAfter int, message string) {
	if s.m != nil {
		s.m.RateLimited.WithLabelValues(scope).Inc()
	}
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	detail(c, http.StatusTooManyRequests, message)
}

// requireAuth resolves the bearer token to an active user and stores it on
// the request context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		user, err := s.auth.CurrentUser(c.Request.Context(), token)
		if err != nil {
			authError(c, err)
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// requireAdmin runs after requireAuth and gates admin-only routes.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := currentUser(c); user == nil || !user.IsAdmin {
			detail(c, http.StatusForbidden, "Admin privileges required")
			return
		}
		c.Next()
	}
}

// currentUser fetches the authenticated user placed by requireAuth.
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// observe counts finished requests by method and status.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.m != nil {
			s.m.RequestsProcessed.WithLabelValues(
				c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		}
	}
}
