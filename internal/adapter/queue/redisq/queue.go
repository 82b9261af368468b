// Package redisq implements the list-based queue protocol and the
// idempotency registry on Redis. Queues are plain lists: Pop is BLPOP (head),
// PushHead is LPUSH, PushTail is RPUSH, so tail-pushed items are served FIFO
// and head-pushed items preempt them.
package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// Client wraps a go-redis client with the queue protocol.
type Client struct {
	rdb *redis.Client
}

// New connects to Redis from a URL (redis://host:port/db).
func New(url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=redisq.New: %w", err)
	}
	return &Client{rdb: redis.NewClient(opt)}, nil
}

// NewFromClient wraps an existing client; used by tests with miniredis.
func NewFromClient(rdb *redis.Client) *Client { return &Client{rdb: rdb} }

// Ping verifies connectivity; workers treat failure as a setup error.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("op=redisq.Ping: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

// Pop blocks up to timeout across queues in declaration order and returns the
// oldest head item of the first non-empty queue, or nil on timeout. A payload
// that is not a JSON object comes back with Poisoned set; the raw bytes are
// preserved verbatim either way.
func (c *Client) Pop(ctx context.Context, queues []string, timeout time.Duration) (*domain.Message, error) {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.Pop",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.StringSlice("queue.names", queues)))
	defer span.End()
	res, err := c.rdb.BLPop(ctx, timeout, queues...).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=queue.pop: %w", err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("op=queue.pop: unexpected reply length %d", len(res))
	}
	raw := []byte(res[1])
	msg := &domain.Message{Queue: res[0], Raw: raw}
	if !isJSONObject(raw) {
		slog.Warn("queue payload is not a JSON object", slog.String("queue", msg.Queue))
		msg.Poisoned = true
	}
	return msg, nil
}

// PushHead left-pushes payload so it is served next.
func (c *Client) PushHead(ctx context.Context, queue string, payload any) error {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.PushHead",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("queue.name", queue)))
	defer span.End()
	b, err := marshal(payload)
	if err != nil {
		return err
	}
	if err := c.rdb.LPush(ctx, queue, b).Err(); err != nil {
		return fmt.Errorf("op=queue.push_head: %w", err)
	}
	return nil
}

// PushTail right-pushes payload so it is served in FIFO order.
func (c *Client) PushTail(ctx context.Context, queue string, payload any) error {
	tracer := otel.Tracer("queue.redisq")
	ctx, span := tracer.Start(ctx, "queue.PushTail",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("queue.name", queue)))
	defer span.End()
	b, err := marshal(payload)
	if err != nil {
		return err
	}
	if err := c.rdb.RPush(ctx, queue, b).Err(); err != nil {
		return fmt.Errorf("op=queue.push_tail: %w", err)
	}
	return nil
}

func marshal(payload any) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=queue.marshal: %w", err)
	}
	return b, nil
}

func isJSONObject(raw []byte) bool {
	if !json.Valid(raw) {
		return false
	}
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

var _ domain.Queue = (*Client)(nil)
