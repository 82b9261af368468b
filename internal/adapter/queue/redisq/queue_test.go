package redisq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb)
}

func TestQueue_TailFIFO(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushTail(ctx, "q", map[string]int{"n": 1}))
	require.NoError(t, c.PushTail(ctx, "q", map[string]int{"n": 2}))
	require.NoError(t, c.PushTail(ctx, "q", map[string]int{"n": 3}))

	for want := 1; want <= 3; want++ {
		msg, err := c.Pop(ctx, []string{"q"}, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		var got map[string]int
		require.NoError(t, json.Unmarshal(msg.Raw, &got))
		assert.Equal(t, want, got["n"])
	}
}

func TestQueue_HeadPreemptsTail(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushTail(ctx, "q", map[string]string{"k": "tail"}))
	require.NoError(t, c.PushHead(ctx, "q", map[string]string{"k": "head"}))

	msg, err := c.Pop(ctx, []string{"q"}, time.Second)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal(msg.Raw, &got))
	assert.Equal(t, "head", got["k"])
}

func TestQueue_PopDeclarationOrder(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushTail(ctx, "second", map[string]string{"q": "second"}))
	require.NoError(t, c.PushTail(ctx, "first", map[string]string{"q": "first"}))

	msg, err := c.Pop(ctx, []string{"first", "second"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Queue)
}

func TestQueue_PopTimeoutReturnsNil(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	msg, err := c.Pop(context.Background(), []string{"empty"}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestQueue_PoisonedPayload(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushTail(ctx, "q", []byte("not json")))
	msg, err := c.Pop(ctx, []string{"q"}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.Poisoned)
	assert.Equal(t, []byte("not json"), msg.Raw, "raw bytes preserved verbatim")

	// Top-level arrays are valid JSON but not job envelopes.
	require.NoError(t, c.PushTail(ctx, "q", []byte("[1,2]")))
	msg, err = c.Pop(ctx, []string{"q"}, time.Second)
	require.NoError(t, err)
	assert.True(t, msg.Poisoned)
}

func TestQueue_RawMessagePassthrough(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()

	original := json.RawMessage(`{"a": 1,   "b":"two"}`)
	require.NoError(t, c.PushTail(ctx, "q", original))
	msg, err := c.Pop(ctx, []string{"q"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte(original), msg.Raw, "requeued payloads must not be re-marshalled")
}

func TestIdempotency_ClaimOnce(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	ctx := context.Background()
	key := domain.SummarizerDoneKey("a1", "m1")

	first, err := c.Claim(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.Claim(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, second, "second claim must lose")

	exists, err := c.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIdempotency_CheckMissing(t *testing.T) {
	t.Parallel()
	c := newTestClient(t)
	exists, err := c.Check(context.Background(), domain.ScraperDoneKey("nope"))
	require.NoError(t, err)
	assert.False(t, exists)
}
