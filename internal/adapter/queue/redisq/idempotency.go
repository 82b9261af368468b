package redisq

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// Claim performs an atomic set-if-absent with expiry and reports whether this
// call was the first to set the key. A true result grants exclusive
// processing rights for ttl.
func (c *Client) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "idem.Claim")
	defer span.End()
	ok, err := c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("op=idem.claim: %w", err)
	}
	return ok, nil
}

// Check is a plain existence test. It does not claim anything; the scraper
// uses it because its completion marker is only set after full success.
func (c *Client) Check(ctx context.Context, key string) (bool, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "idem.Check")
	defer span.End()
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("op=idem.check: %w", err)
	}
	return n == 1, nil
}

var _ domain.Idempotency = (*Client)(nil)
