// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InitStock seeds the stock counter for a product.
func (s *Store) InitStock(ctx context.Context, productID string, quantity int) error {
	if err := s.rdb.Set(ctx, stockKey(productID), quantity, 0).Err(); err != nil {
		return fmt.Errorf("kv: init stock %s: %w", productID, err)
	}
	return nil
}

// Stock returns the current counter value, zero when unset.
func (s *Store) Stock(ctx context.Context, productID string) (int, error) {
	v, err := s.rdb.Get(ctx, stockKey(productID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("kv: get stock %s: %w", productID, err)
	}
	return v, nil
}

// DecrStock atomically decrements the counter while it is positive. Returns
// the new value, or -1 when the counter was exhausted (nothing is written in
// that case).
func (s *Store) DecrStock(ctx context.Context, productID string) (int, error) {
	v, err := s.decrStock.Run(ctx, s.rdb, []string{stockKey(productID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("kv: decr stock %s: %w", productID, err)
	}
	return v, nil
}

// IncrStock increments the counter. Used to roll back a decrement when the
// durable layers reject it.
func (s *Store) IncrStock(ctx context.Context, productID string) (int, error) {
	v, err := s.rdb.Incr(ctx, stockKey(productID)).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: incr stock %s: %w", productID, err)
	}
	return int(v), nil
}

// AcquireLock takes the per-product lock with SET NX EX. When owner is empty
// a fresh token is generated. Returns the owner token either way so the
// caller can release.
func (s *Store) AcquireLock(ctx context.Context, productID, owner string, ttl time.Duration) (bool, string, error) {
	if owner == "" {
		owner = uuid.NewString()
	}
	ok, err := s.rdb.SetNX(ctx, lockKey(productID), owner, ttl).Result()
	if err != nil {
		return false, owner, fmt.Errorf("kv: acquire lock %s: %w", productID, err)
	}
	return ok, owner, nil
}

// ReleaseLock frees the lock only when the token still matches, so an expired
// lock reacquired by another caller is never clobbered.
func (s *Store) ReleaseLock(ctx context.Context, productID, owner string) (bool, error) {
	n, err := s.releaseLock.Run(ctx, s.rdb, []string{lockKey(productID)}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("kv: release lock %s: %w", productID, err)
	}
	return n == 1, nil
}
