// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command flashbid runs the flash-sale bidding engine: the HTTP and
// websocket API, the leaderboard broadcaster, and the settlement poller.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luxfi/flashbid/pkg/api"
	"github.com/luxfi/flashbid/pkg/auth"
	"github.com/luxfi/flashbid/pkg/bid"
	"github.com/luxfi/flashbid/pkg/cache"
	"github.com/luxfi/flashbid/pkg/config"
	"github.com/luxfi/flashbid/pkg/inventory"
	"github.com/luxfi/flashbid/pkg/kv"
	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/ranking"
	"github.com/luxfi/flashbid/pkg/settle"
	"github.com/luxfi/flashbid/pkg/store"
	"github.com/luxfi/flashbid/pkg/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.New().Fatal("config load failed", log.Error(err))
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	m, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal("metrics init failed", log.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("database connect failed", log.Error(err))
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		logger.Fatal("schema migration failed", log.Error(err))
	}

	kvs, err := kv.New(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("redis connect failed", log.Error(err))
	}
	defer kvs.Close()

	campaigns := cache.New(kvs, db, logger, m)
	authSvc := auth.New(cfg.JWTSecretKey, cfg.AccessTokenTTL, kvs, db, logger)
	hub := ws.NewHub(logger, m)
	bids := bid.New(campaigns, db, kvs, hub, logger, m)
	rankings := ranking.New(kvs, db, campaigns, logger)
	guard := inventory.New(kvs, db, logger, m)
	settler := settle.New(db, kvs, guard, hub, logger, m)

	go settle.NewPoller(settler, logger).Run(ctx)
	go ws.NewBroadcaster(hub, kvs, campaigns, logger, m).Run(ctx)

	server := api.New(cfg, logger, m, db, kvs, campaigns, authSvc, bids, rankings, hub)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", log.Error(err))
		}
	}()
	logger.Info("flashbid started", log.String("addr", cfg.ListenAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", log.Error(err))
	}
	hub.CloseAll()

	logger.Info("server exiting")
}
