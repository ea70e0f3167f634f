package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Booking attempts of one user live in a sorted set scored by attempt time.
// An attempt is recorded only when it is admitted, so a user hammering the
// endpoint while limited does not push their own window forward.
//
// KEYS[1] attempts key
// ARGV    now_ms, window_ms, max_attempts, attempt_id
// returns {admitted, wait_ms}
const luaBookingAttempt = `
local attempts = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max_attempts = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', attempts, '-inf', now - window)

if redis.call('ZCARD', attempts) >= max_attempts then
  local oldest = redis.call('ZRANGE', attempts, 0, 0, 'WITHSCORES')
  local wait = tonumber(oldest[2]) + window - now
  if wait < 1 then wait = 1 end
  return {0, wait}
end

redis.call('ZADD', attempts, now, ARGV[4])
redis.call('PEXPIRE', attempts, window)
return {1, 0}
`

// BookingLimiter caps how many bookings a user may attempt within window.
type BookingLimiter struct {
	rdb         *redis.Client
	maxAttempts int
	window      time.Duration
	script      *redis.Script
}

func NewBookingLimiter(rdb *redis.Client, maxAttempts int, window time.Duration) *BookingLimiter {
	return &BookingLimiter{
		rdb:         rdb,
		maxAttempts: maxAttempts,
		window:      window,
		script:      redis.NewScript(luaBookingAttempt),
	}
}

// Allow admits a booking attempt by userID. A refused attempt reports how long
// until the user's oldest admitted attempt leaves the window.
func (l *BookingLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, time.Duration, error) {
	const op = "redisrepo.BookingLimiter.Allow"

	res, err := l.script.Run(ctx, l.rdb,
		[]string{KeyBookingAttempts(userID)},
		time.Now().UnixMilli(), l.window.Milliseconds(), l.maxAttempts, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("%s: unexpected script reply %v", op, res)
	}

	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}
