// Package dispatch implements the generic task worker: a fixed mapping from
// task kind to handler over bare-named Redis queues, with bounded retries and
// per-kind dead-letter routing.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// TaskKind enumerates the dispatcher's queues. The set is closed: unknown
// kinds are a configuration error, not an extension point.
type TaskKind string

const (
	KindFetchArticle TaskKind = "FETCH_ARTICLE"
	KindSummarize    TaskKind = "SUMMARIZE"
	KindEmbed        TaskKind = "EMBED"
	KindTag          TaskKind = "TAG"
	KindRefreshStats TaskKind = "REFRESH_HN_STATS"
)

// kindOrder is the blocking-pop declaration order.
var kindOrder = []TaskKind{KindFetchArticle, KindSummarize, KindEmbed, KindTag, KindRefreshStats}

// HandlerFunc is one task body.
type HandlerFunc func(ctx context.Context, t Task) (Result, error)

// Dispatcher pops tasks across the kind queues and routes them to handlers.
type Dispatcher struct {
	cfg      config.Config
	queue    domain.Queue
	handlers map[TaskKind]HandlerFunc
}

// New wires the fixed kind→handler map.
func New(cfg config.Config, q domain.Queue, h *Handlers) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		queue: q,
		handlers: map[TaskKind]HandlerFunc{
			KindFetchArticle: h.FetchArticle,
			KindSummarize:    h.Summarize,
			KindEmbed:        h.Embed,
			KindTag:          h.Tag,
			KindRefreshStats: h.RefreshStats,
		},
	}
}

// Enqueue pushes a task to the tail of its kind queue.
func (d *Dispatcher) Enqueue(ctx context.Context, kind TaskKind, t Task) error {
	return d.queue.PushTail(ctx, string(kind), t)
}

// ProcessOne pops one task across all kind queues and fully disposes of it.
// It reports whether a task was handled.
func (d *Dispatcher) ProcessOne(ctx context.Context) (bool, error) {
	queues := make([]string, len(kindOrder))
	for i, k := range kindOrder {
		queues[i] = string(k)
	}
	msg, err := d.queue.Pop(ctx, queues, 5*time.Second)
	if err != nil || msg == nil {
		return false, err
	}

	kind := TaskKind(msg.Queue)
	log := slog.With(slog.String("queue", msg.Queue))
	if msg.Poisoned {
		log.Error("poisoned queue item")
		return true, nil
	}

	handler, ok := d.handlers[kind]
	if !ok {
		log.Error("unknown queue")
		return true, nil
	}

	// The payload is decoded twice: once as the typed task, once as a raw map
	// so retry and DLQ copies preserve fields the type does not model.
	var task Task
	if err := json.Unmarshal(msg.Raw, &task); err != nil {
		log.Error("undecodable task", slog.Any("error", err))
		return true, d.deadLetter(ctx, kind, msg.Raw, err)
	}
	attempt := task.Attempt
	if attempt < 1 {
		attempt = 1
	}

	t0 := time.Now()
	log.Info("job start", slog.Int("payload_bytes", len(msg.Raw)), slog.Int("attempt", attempt))

	result, err := handler(ctx, task)
	if err != nil {
		log.Error("job error",
			slog.Int64("duration_ms", time.Since(t0).Milliseconds()),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if attempt >= d.cfg.DispatcherMaxRetries() {
			return true, d.deadLetter(ctx, kind, msg.Raw, err)
		}
		observability.JobsRetried.WithLabelValues(string(kind), "handler_error").Inc()
		return true, d.requeue(ctx, kind, msg.Raw, attempt+1)
	}

	observability.JobsCompleted.WithLabelValues(string(kind)).Inc()
	log.Info("job done", slog.Int64("duration_ms", time.Since(t0).Milliseconds()))

	if kind == KindFetchArticle {
		d.enqueueFollowOns(ctx, task, result)
	}
	return true, nil
}

// enqueueFollowOns schedules the post-fetch pipeline. Both sides are guarded:
// no article means nothing to summarize or embed, no story means nothing to
// tag.
func (d *Dispatcher) enqueueFollowOns(ctx context.Context, task Task, result Result) {
	if result.ArticleID != "" {
		if err := d.Enqueue(ctx, KindSummarize, Task{ArticleID: result.ArticleID, Attempt: 1}); err != nil {
			slog.Error("follow-on enqueue failed", slog.String("queue", string(KindSummarize)), slog.Any("error", err))
		}
		if err := d.Enqueue(ctx, KindEmbed, Task{ArticleID: result.ArticleID, ModelKey: "default", Attempt: 1}); err != nil {
			slog.Error("follow-on enqueue failed", slog.String("queue", string(KindEmbed)), slog.Any("error", err))
		}
	}
	if task.StoryID != "" {
		if err := d.Enqueue(ctx, KindTag, Task{StoryID: task.StoryID, Title: task.Title, Attempt: 1}); err != nil {
			slog.Error("follow-on enqueue failed", slog.String("queue", string(KindTag)), slog.Any("error", err))
		}
	}
}

// requeue re-enqueues the raw payload with attempt bumped, preserving every
// other field verbatim.
func (d *Dispatcher) requeue(ctx context.Context, kind TaskKind, raw []byte, attempt int) error {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return d.deadLetter(ctx, kind, raw, err)
	}
	m["attempt"] = attempt
	return d.queue.PushTail(ctx, string(kind), m)
}

// deadLetter routes the payload to DLQ:{kind} with the error and failure time
// merged in.
func (d *Dispatcher) deadLetter(ctx context.Context, kind TaskKind, raw []byte, cause error) error {
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		m = map[string]any{"raw": string(raw)}
	}
	m["error"] = cause.Error()
	m["failed_at"] = time.Now().Unix()

	observability.JobsDeadLettered.WithLabelValues(string(kind), "handler_error").Inc()
	slog.Error("job dead-lettered",
		slog.String("queue", string(kind)),
		slog.Any("error", cause))
	return d.queue.PushTail(ctx, "DLQ:"+string(kind), m)
}

// Run processes tasks until ctx is cancelled, logging an idle heartbeat when
// the queues stay empty.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher started", slog.Int("max_retries", d.cfg.DispatcherMaxRetries()))

	idleEvery := time.Duration(d.cfg.IdleHeartbeatSec) * time.Second
	if idleEvery < time.Second {
		idleEvery = time.Second
	}
	lastIdleLog := time.Time{}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed, err := d.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("loop error", slog.Any("error", err))
			t := time.NewTimer(time.Second)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
			continue
		}
		if !processed && time.Since(lastIdleLog) >= idleEvery {
			slog.Debug("idle")
			lastIdleLog = time.Now()
		}
	}
}
