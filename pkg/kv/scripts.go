// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package kv

// decrStockLua decrements the stock counter only while it is positive and
// returns the new value, or -1 when the counter is exhausted or unset.
const decrStockLua = `
local stock = tonumber(redis.call("GET", KEYS[1]))
if stock and stock >= 1 then
    return redis.call("DECR", KEYS[1])
else
    return -1
end
`

// releaseLockLua deletes the lock only when the caller still owns it.
const releaseLockLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`

// maxPriceLua overwrites the max-price cell only when the candidate is
// strictly greater, keeping the cell monotone under concurrent bidders.
const maxPriceLua = `
local current = tonumber(redis.call("GET", KEYS[1]))
local candidate = tonumber(ARGV[1])
if not current or candidate > current then
    redis.call("SET", KEYS[1], ARGV[1])
    return 1
end
return 0
`

// rateLimitLua is a sliding-window check-and-add. It trims entries older than
// the window, rejects when the window is full (returning the seconds until
// the oldest entry expires), otherwise records the request.
//
// KEYS[1] window zset; ARGV[1] now (float seconds); ARGV[2] window seconds;
// ARGV[3] limit; ARGV[4] member.
const rateLimitLua = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], 0, now - window)
local count = redis.call("ZCARD", KEYS[1])
if count >= limit then
    local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
    local retry = 1
    if oldest[2] then
        retry = math.max(1, math.ceil(tonumber(oldest[2]) + window - now))
    end
    return {0, retry}
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("EXPIRE", KEYS[1], window + 1)
return {1, 0}
`
