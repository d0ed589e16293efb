// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api is the HTTP and WebSocket edge: routing, authentication, rate
// limiting and response shaping. Business logic lives in the services it
// delegates to.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/flashbid/pkg/auth"
	"github.com/luxfi/flashbid/pkg/bid"
	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/config"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/ranking"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

// Server wires the edge to the services.
type Server struct {
	cfg *config.Config
	log log.Logger
	m   *metric.Metrics

	db        *store.Store
	kvs       *kv.Store
	limiter   RateLimiter
	campaigns *cache.Campaigns
	auth      *auth.Service
	bids      *bid.Service
	rankings  *ranking.Service
	hub       *ws.Hub
}

// New assembles the server.
func New(cfg *config.Config, logger log.Logger, m *metric.Metrics,
	db *store.Store, kvs *kv.Store, campaigns *cache.Campaigns,
	authSvc *auth.Service, bids *bid.Service, rankings *ranking.Service,
	hub *ws.Hub) *Server {
	return &Server{
		cfg:       cfg,
		log:       logger,
		m:         m,
		db:        db,
		kvs:       kvs,
		limiter:   kvs,
		campaigns: campaigns,
		auth:      authSvc,
		bids:      bids,
		rankings:  rankings,
		hub:       hub,
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.observe())
	router.Use(s.rateLimit())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = s.cfg.CORSOrigins
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsCfg.AllowCredentials = true
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})
	if s.m != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.m.GetGatherer(), promhttp.HandlerOpts{})))
	}

	router.GET("/ws/:campaign_id", s.handleSubscribe)

	api := router.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", s.handleRegister)
			authGroup.POST("/login", s.handleLogin)
			authGroup.GET("/me", s.requireAuth(), s.handleMe)
		}

		products := api.Group("/products")
		{
			products.GET("", s.handleListProducts)
			products.GET("/:product_id", s.handleGetProduct)
			products.POST("", s.requireAuth(), s.requireAdmin(), s.handleCreateProduct)
		}

		campaigns := api.Group("/campaigns")
		{
			campaigns.GET("", s.handleListCampaigns)
			campaigns.GET("/:campaign_id", s.handleGetCampaign)
			campaigns.POST("", s.requireAuth(), s.requireAdmin(), s.handleCreateCampaign)
		}

		bids := api.Group("/bids", s.requireAuth())
		{
			bids.POST("", s.handleSubmitBid)
			bids.GET("/:campaign_id/history", s.handleBidHistory)
		}

		rankings := api.Group("/rankings")
		{
			rankings.GET("/:campaign_id", s.handleRankings)
			rankings.GET("/:campaign_id/me", s.requireAuth(), s.handleMyRank)
		}

		orders := api.Group("/orders", s.requireAuth())
		{
			orders.GET("", s.handleMyOrders)
			orders.GET("/campaign/:campaign_id", s.requireAdmin(), s.handleCampaignOrders)
		}
	}

	return router
}
