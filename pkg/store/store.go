// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store is the Postgres adapter. It owns the durable schema and every
// statement the engine issues: user and product reads, campaign lifecycle,
// the atomic bid upsert, guarded stock decrements and order materialisation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luxfi/flashbid/pkg/log"
)

// Sentinel errors surfaced to the service layer.
var (
	ErrNotFound          = errors.New("store: not found")
	ErrEmailTaken        = errors.New("store: email already registered")
	ErrInsufficientStock = errors.New("store: insufficient stock")
	ErrVersionConflict   = errors.New("store: version conflict")
)

const connectTimeout = 30 * time.Second

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  log.Logger
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, url string, logger log.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse url: %w", err)
	}
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{pool: pool, log: logger}, nil
}

// NewWithPool builds a Store around an existing pool. Used by tests.
func NewWithPool(pool *pgxpool.Pool, logger log.Logger) *Store {
	return &Store{pool: pool, log: logger}
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Healthy reports whether Postgres answers a ping.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.pool.Ping(ctx) == nil
}

// EnsureSchema creates tables and constraints when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// The unique constraints on (campaign_id, user_id) for bids and orders are
// the correctness anchors: the bid upsert and the one-order-per-winner
// invariant both hang off them.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id       UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    weight        NUMERIC(4,2) NOT NULL,
    status        TEXT NOT NULL DEFAULT 'active',
    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_user_weight CHECK (weight >= 0.5 AND weight <= 5.0)
);

CREATE TABLE IF NOT EXISTS products (
    product_id UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    stock      INTEGER NOT NULL,
    min_price  NUMERIC(10,2) NOT NULL,
    version    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_product_stock CHECK (stock >= 0),
    CONSTRAINT chk_product_min_price CHECK (min_price > 0)
);

CREATE TABLE IF NOT EXISTS campaigns (
    campaign_id UUID PRIMARY KEY,
    product_id  UUID NOT NULL REFERENCES products(product_id),
    start_time  TIMESTAMPTZ NOT NULL,
    end_time    TIMESTAMPTZ NOT NULL,
    alpha       NUMERIC(10,4) NOT NULL DEFAULT 1.0,
    beta        NUMERIC(10,4) NOT NULL DEFAULT 1000.0,
    gamma       NUMERIC(10,4) NOT NULL DEFAULT 100.0,
    quota       INTEGER NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_campaign_time CHECK (end_time > start_time)
);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_campaigns_time ON campaigns(start_time, end_time);

CREATE TABLE IF NOT EXISTS bids (
    bid_id          UUID PRIMARY KEY,
    campaign_id     UUID NOT NULL REFERENCES campaigns(campaign_id),
    user_id         UUID NOT NULL REFERENCES users(user_id),
    product_id      UUID NOT NULL REFERENCES products(product_id),
    price           NUMERIC(10,2) NOT NULL,
    score           NUMERIC(15,4) NOT NULL,
    time_elapsed_ms BIGINT NOT NULL,
    bid_number      INTEGER NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_bid_price_positive CHECK (price > 0),
    CONSTRAINT uq_bids_campaign_user UNIQUE (campaign_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_bids_campaign ON bids(campaign_id);

CREATE TABLE IF NOT EXISTS orders (
    order_id    UUID PRIMARY KEY,
    campaign_id UUID NOT NULL REFERENCES campaigns(campaign_id),
    user_id     UUID NOT NULL REFERENCES users(user_id),
    product_id  UUID NOT NULL REFERENCES products(product_id),
    final_price NUMERIC(10,2) NOT NULL,
    final_score NUMERIC(15,4) NOT NULL,
    final_rank  INTEGER NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT chk_order_rank CHECK (final_rank >= 1),
    CONSTRAINT uq_orders_campaign_user UNIQUE (campaign_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_campaign ON orders(campaign_id);
`
