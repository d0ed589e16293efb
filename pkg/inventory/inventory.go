// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package inventory implements the guarded stock decrement used at
// settlement. Four layers apply in order: a short-TTL distributed lock, an
// atomic Redis decrement, a row lock in Postgres, and a version-checked
// update. Any durable failure rolls the Redis counter back.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/flashbid/pkg/log"
	"github.com/luxfi/flashbid/pkg/metric"
	"github.com/luxfi/flashbid/pkg/store"
)

var (
	ErrLocked     = errors.New("inventory: product locked")
	ErrOutOfStock = errors.New("inventory: out of stock")
	ErrConflict   = errors.New("inventory: concurrent stock update")
)

// DefaultLockTTL bounds how long a crashed holder can stall other workers.
const DefaultLockTTL = 2 * time.Second

// KV is the Redis stock and lock surface.
type KV interface {
	AcquireLock(ctx context.Context, productID, owner string, ttl time.Duration) (bool, string, error)
	ReleaseLock(ctx context.Context, productID, owner string) (bool, error)
	DecrStock(ctx context.Context, productID string) (int, error)
	IncrStock(ctx context.Context, productID string) (int, error)
}

// DB is the durable product surface.
type DB interface {
	DecrementStockGuarded(ctx context.Context, productID uuid.UUID) error
	IncrementStockGuarded(ctx context.Context, productID uuid.UUID) error
}

// Guard applies the four protection layers.
type Guard struct {
	kv  KV
	db  DB
	log log.Logger
	m   *metric.Metrics
}

// New builds the guard. metrics may be nil in tests.
func New(kv KV, db DB, logger log.Logger, m *metric.Metrics) *Guard {
	return &Guard{kv: kv, db: db, log: logger, m: m}
}

// Decrement takes one unit of stock or fails without side effects. On
// success it returns the lock token; the caller must Release it once the
// dependent durable write has committed. If the TTL expires first, the row
// lock inside the durable layer keeps later acquirers correct.
func (g *Guard) Decrement(ctx context.Context, productID uuid.UUID, lockTTL time.Duration) (string, error) {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	id := productID.String()

	acquired, token, err := g.kv.AcquireLock(ctx, id, "", lockTTL)
	if err != nil {
		return "", fmt.Errorf("inventory: acquire lock: %w", err)
	}
	if !acquired {
		g.conflict("lock")
		return "", ErrLocked
	}

	remaining, err := g.kv.DecrStock(ctx, id)
	if err != nil {
		g.release(ctx, id, token)
		return "", fmt.Errorf("inventory: kv decrement: %w", err)
	}
	if remaining < 0 {
		g.conflict("kv_stock")
		g.release(ctx, id, token)
		return "", ErrOutOfStock
	}

	if err := g.db.DecrementStockGuarded(ctx, productID); err != nil {
		g.rollback(ctx, id)
		g.release(ctx, id, token)
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			g.conflict("row_stock")
			return "", ErrOutOfStock
		case errors.Is(err, store.ErrVersionConflict):
			g.conflict("version")
			return "", ErrConflict
		}
		return "", fmt.Errorf("inventory: durable decrement: %w", err)
	}
	return token, nil
}

// Release frees the product lock. Only the token holder succeeds; an expired
// or stolen lock is logged and ignored.
func (g *Guard) Release(ctx context.Context, productID uuid.UUID, token string) {
	g.release(ctx, productID.String(), token)
}

func (g *Guard) release(ctx context.Context, productID, token string) {
	released, err := g.kv.ReleaseLock(ctx, productID, token)
	if err != nil {
		g.log.Warn("lock release failed", log.String("product", productID), log.Error(err))
		return
	}
	if !released {
		g.log.Warn("lock expired before release", log.String("product", productID))
	}
}

// Rollback hands one fully consumed unit back to both stores. Callers use it
// when the write that should account for the unit cannot be recorded, so a
// lower-ranked winner is not starved of stock that was never sold.
func (g *Guard) Rollback(ctx context.Context, productID uuid.UUID) error {
	g.rollback(ctx, productID.String())
	if err := g.db.IncrementStockGuarded(ctx, productID); err != nil {
		return fmt.Errorf("inventory: durable rollback: %w", err)
	}
	return nil
}

func (g *Guard) rollback(ctx context.Context, productID string) {
	if _, err := g.kv.IncrStock(ctx, productID); err != nil {
		g.log.Error("stock rollback failed, kv counter low",
			log.String("product", productID), log.Error(err))
	}
}

func (g *Guard) conflict(layer string) {
	if g.m != nil {
		g.m.StockConflicts.WithLabelValues(layer).Inc()
	}
}
