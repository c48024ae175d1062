package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/sentinel/internal/platform/httpx"
)

// ErrTooManyAttempts is returned while an email/IP pair is locked out.
var ErrTooManyAttempts = fmt.Errorf("auth: too many login attempts: %w", httpx.ErrTooManyRequests)

// Throttle counts failed logins per email and client address in Redis.
type Throttle struct {
	client      *redis.Client
	maxAttempts int64
	decay       time.Duration
}

// NewThrottle allows maxAttempts failures per decay window.
func NewThrottle(client *redis.Client, maxAttempts int, decay time.Duration) *Throttle {
	return &Throttle{client: client, maxAttempts: int64(maxAttempts), decay: decay}
}

func (t *Throttle) key(email, ip string) string {
	return "sentinel:login:" + strings.ToLower(strings.TrimSpace(email)) + "|" + ip
}

// Check fails with ErrTooManyAttempts once the failure budget is spent.
func (t *Throttle) Check(ctx context.Context, email, ip string) error {
	n, err := t.client.Get(ctx, t.key(email, ip)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: throttle get: %w", err)
	}
	if n >= t.maxAttempts {
		return ErrTooManyAttempts
	}
	return nil
}

// Hit records a failed attempt. The window starts at the first failure.
func (t *Throttle) Hit(ctx context.Context, email, ip string) error {
	key := t.key(email, ip)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, t.decay)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("auth: throttle hit: %w", err)
	}
	return nil
}

// Clear forgets the failures after a successful login.
func (t *Throttle) Clear(ctx context.Context, email, ip string) error {
	return t.client.Del(ctx, t.key(email, ip)).Err()
}
