// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// RateLimitScope prefixes for the sliding-window keys.
const (
	RateLimitIP   = "ratelimit:ip:"
	RateLimitUser = "ratelimit:user:"
)

// AllowRate runs the scripted sliding-window check-and-add for the given key.
// Returns whether the request is admitted and, when rejected, the number of
// seconds after which a retry can succeed.
func (s *Store) AllowRate(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	member := strconv.FormatFloat(now, 'f', -1, 64)

	res, err := s.rateLimit.Run(ctx, s.rdb,
		[]string{key},
		now, window.Seconds(), limit, member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("kv: rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("kv: rate limit %s: unexpected reply %v", key, res)
	}
	return res[0] == 1, int(res[1]), nil
}
