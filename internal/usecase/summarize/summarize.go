// Package summarize implements the summarization worker: pop a bounded
// article payload, claim the (article, model) pair, call the model with
// bounded retry, normalize the result, and emit the output envelope.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// llmAttempts bounds the in-job model retry loop; only LLM-classified errors
// consume attempts, anything else fails the job immediately.
const llmAttempts = 3

// Engine is the summarizer job processor.
type Engine struct {
	cfg      config.Config
	queue    domain.Queue
	idem     domain.Idempotency
	ai       domain.AIClient
	validate *validator.Validate

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a summarizer Engine.
func New(cfg config.Config, q domain.Queue, idem domain.Idempotency, ai domain.AIClient) *Engine {
	return &Engine{
		cfg:      cfg,
		queue:    q,
		idem:     idem,
		ai:       ai,
		validate: validator.New(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProcessOne pops and fully disposes of one job, retry queue first. It
// reports whether a job was handled.
func (e *Engine) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := e.queue.Pop(ctx, []string{e.cfg.SummarizerRetryQueue(), e.cfg.SummarizerQueue}, 5*time.Second)
	if err != nil || msg == nil {
		return false, err
	}

	if msg.Poisoned {
		slog.Error("poisoned queue item", slog.String("queue", msg.Queue))
		return true, e.deadLetter(ctx, domain.RawStub(msg.Raw), "SCHEMA_MISMATCH", "payload is not a JSON object")
	}

	var in domain.SummarizerIn
	if err := json.Unmarshal(msg.Raw, &in); err != nil {
		slog.Error("invalid payload", slog.Any("error", err))
		return true, e.deadLetter(ctx, msg.Raw, "SCHEMA_MISMATCH", err.Error())
	}

	if msg.Queue == e.cfg.SummarizerRetryQueue() && in.VisibleAt > 0 && in.VisibleAt > domain.NowMS() {
		return false, e.queue.PushTail(ctx, e.cfg.SummarizerRetryQueue(), msg.Raw)
	}

	return true, e.process(ctx, msg.Raw, in)
}

func (e *Engine) process(ctx context.Context, raw []byte, in domain.SummarizerIn) error {
	log := slog.With(
		slog.String("trace_id", in.TraceID),
		slog.String("story_id", in.Story.ID),
		slog.String("article_id", in.Article.ID),
		slog.Int("attempt", in.Attempt))

	if in.SchemaVersion != e.cfg.JSONSchemaVersion {
		log.Error("schema version mismatch", slog.Int("schema_version", in.SchemaVersion))
		return e.deadLetter(ctx, raw, "SCHEMA_MISMATCH", "schema_version_mismatch")
	}
	if err := e.validate.Struct(in); err != nil {
		log.Error("payload validation failed", slog.Any("error", err))
		return e.deadLetter(ctx, raw, "SCHEMA_MISMATCH", err.Error())
	}

	// Pre-claim before the model call: of two workers holding copies of the
	// same article, only one pays for the LLM.
	claimed, err := e.idem.Claim(ctx, domain.SummarizerDoneKey(in.Article.ID, e.cfg.LLMModel), domain.IdempotencyTTL)
	if err != nil {
		log.Warn("idempotency claim failed", slog.Any("error", err))
		return e.retryOrDLQ(ctx, in, "UNKNOWN", err.Error())
	}
	if !claimed && !e.cfg.Force {
		log.Info("skip: already summarized", slog.String("model", e.cfg.LLMModel))
		return nil
	}

	t0 := time.Now()
	result, llmErr := e.callModel(ctx, in)
	if llmErr != nil {
		reason := "UNKNOWN"
		if le, ok := domain.AsLLMError(llmErr); ok {
			reason = domain.DLQReason(le.Kind)
		}
		return e.retryOrDLQ(ctx, in, reason, llmErr.Error())
	}

	summary, ok := ClipSummary(result.Summary)
	if !ok {
		log.Error("model returned empty summary")
		return e.retryOrDLQ(ctx, in, "UNKNOWN", "summary_empty")
	}

	cls := domain.Classification{}
	if result.Classification != nil {
		cls = *result.Classification
	}
	cls.Tags = NormalizeTags(cls.Tags)
	cls.Topics = NormalizeTopics(cls.Topics)

	out := domain.SummarizerOut{
		TraceID:        in.TraceID,
		StoryID:        in.Story.ID,
		ArticleID:      in.Article.ID,
		Model:          e.cfg.LLMModel,
		Lang:           in.Article.Language,
		Summary:        summary,
		Classification: cls,
		UI:             NormalizeUI(result.UI),
		Timestamps:     domain.Timestamps{SummarizedAt: time.Now().UTC().Format("2006-01-02T15:04:05Z")},
		SchemaVersion:  e.cfg.JSONSchemaVersion,
	}
	if err := e.queue.PushHead(ctx, e.cfg.OutputQueue, out); err != nil {
		log.Error("output enqueue failed", slog.Any("error", err))
		return e.retryOrDLQ(ctx, in, "UNKNOWN", err.Error())
	}

	observability.JobsCompleted.WithLabelValues(e.cfg.SummarizerQueue).Inc()
	log.Info("job completed",
		slog.String("model", e.cfg.LLMModel),
		slog.Int64("latency_ms", time.Since(t0).Milliseconds()))
	return nil
}

// callModel runs up to three attempts with a doubling 500ms pause. Only
// LLM-classified errors are retried; anything else is permanent.
func (e *Engine) callModel(ctx context.Context, in domain.SummarizerIn) (*domain.LLMResult, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxElapsedTime = 0

	var result *domain.LLMResult
	op := func() error {
		r, err := e.ai.Summarize(ctx, in)
		if err != nil {
			if _, ok := domain.AsLLMError(err); ok {
				return err
			}
			return backoff.Permanent(err)
		}
		result = r
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, llmAttempts-1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) retryOrDLQ(ctx context.Context, in domain.SummarizerIn, reason, errMsg string) error {
	attempt := in.Attempt + 1
	if attempt < e.cfg.SummarizerMaxRetries() {
		in.Attempt = attempt
		e.mu.Lock()
		delay := domain.RetryBackoff(attempt, e.rng)
		e.mu.Unlock()
		in.VisibleAt = domain.NowMS() + delay.Milliseconds()

		observability.JobsRetried.WithLabelValues(e.cfg.SummarizerRetryQueue(), reason).Inc()
		slog.Warn("job requeued",
			slog.String("trace_id", in.TraceID),
			slog.Int("attempt", attempt),
			slog.String("reason", reason))
		return e.queue.PushTail(ctx, e.cfg.SummarizerRetryQueue(), in)
	}

	in.Attempt = attempt
	quoted, err := json.Marshal(in)
	if err != nil {
		return errors.Join(errors.New("quote failed payload"), err)
	}
	slog.Error("job dead-lettered after retries",
		slog.String("trace_id", in.TraceID),
		slog.String("reason", reason),
		slog.String("err", errMsg))
	return e.deadLetter(ctx, quoted, reason, errMsg)
}

// deadLetter quotes the input verbatim alongside the terminal reason.
func (e *Engine) deadLetter(ctx context.Context, payload []byte, reason, errMsg string) error {
	entry := domain.DLQEntry{Reason: reason, Err: errMsg, Payload: json.RawMessage(payload)}
	observability.JobsDeadLettered.WithLabelValues(e.cfg.SummarizerDLQ(), reason).Inc()
	return e.queue.PushTail(ctx, e.cfg.SummarizerDLQ(), entry)
}

// Run processes jobs until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("summarizer started",
		slog.String("input", e.cfg.SummarizerQueue),
		slog.String("retry", e.cfg.SummarizerRetryQueue()),
		slog.String("dlq", e.cfg.SummarizerDLQ()),
		slog.String("model", e.cfg.LLMModel),
		slog.Int("max_retries", e.cfg.SummarizerMaxRetries()))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := e.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("loop error", slog.Any("error", err))
			t := time.NewTimer(500 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}
