// Package scrape implements the scraping worker: pop an ingest job, fetch and
// extract the page, persist the article, and hand a bounded payload to the
// summarizer.
package scrape

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
	"github.com/fairyhunter13/story-enricher/internal/normalize"
)

// Extractor turns an HTML document into (text, headings, author).
type Extractor func(html string) (string, []string, string)

// Worker is the scraper job processor. All collaborators are ports so tests
// can script them.
type Worker struct {
	cfg     config.Config
	queue   domain.Queue
	idem    domain.Idempotency
	fetcher domain.Fetcher
	store   domain.ArticleStore
	extract Extractor

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a scraper Worker.
func New(cfg config.Config, q domain.Queue, idem domain.Idempotency, f domain.Fetcher, store domain.ArticleStore, extract Extractor) *Worker {
	return &Worker{
		cfg:     cfg,
		queue:   q,
		idem:    idem,
		fetcher: f,
		store:   store,
		extract: extract,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ProcessOne pops and fully disposes of one job. It reports whether a job was
// handled; (false, nil) means both queues were empty.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.Pop(ctx, []string{w.cfg.InputQueue}, 5*time.Second)
	if err != nil {
		return false, err
	}
	if msg == nil {
		msg, err = w.queue.Pop(ctx, []string{w.cfg.ScraperRetryQueue()}, time.Second)
		if err != nil || msg == nil {
			return false, err
		}
	}

	if msg.Poisoned {
		slog.Error("poisoned queue item", slog.String("queue", msg.Queue))
		return true, nil
	}

	var job domain.IngestJob
	if err := json.Unmarshal(msg.Raw, &job); err != nil {
		slog.Error("undecodable job", slog.String("queue", msg.Queue), slog.Any("error", err))
		return true, w.deadLetter(ctx, msg.Raw, "bad_payload", err.Error())
	}

	// Retry-queue jobs carry a visibility threshold; not yet due goes back
	// to the tail untouched.
	if msg.Queue == w.cfg.ScraperRetryQueue() && job.VisibleAt > 0 && job.VisibleAt > domain.NowMS() {
		slog.Debug("job not visible yet",
			slog.String("trace_id", job.TraceID),
			slog.Int64("visible_at", job.VisibleAt))
		return false, w.queue.PushTail(ctx, w.cfg.ScraperRetryQueue(), msg.Raw)
	}

	return true, w.process(ctx, msg.Raw, job)
}

func (w *Worker) process(ctx context.Context, raw []byte, job domain.IngestJob) error {
	log := slog.With(
		slog.String("trace_id", job.TraceID),
		slog.String("story_id", job.Story.ID),
		slog.Int("attempt", job.Attempt))
	log.Info("job received", slog.String("url", job.Story.URL))

	if job.Story.ID == "" {
		log.Error("bad payload: missing story id")
		return w.deadLetter(ctx, raw, "bad_payload", "missing story id")
	}

	done, err := w.idem.Check(ctx, domain.ScraperDoneKey(job.Story.ID))
	if err != nil {
		log.Warn("idempotency check failed", slog.Any("error", err))
	}
	if done && !w.cfg.Force {
		log.Info("skip: already scraped")
		return nil
	}

	if job.Story.URL == "" {
		log.Error("bad payload: missing url")
		return w.deadLetter(ctx, raw, "no_url", "missing url")
	}

	canonURL, domainName, err := normalize.CanonicalizeURL(job.Story.URL)
	if err != nil {
		log.Error("url canonicalization failed", slog.Any("error", err))
		return w.deadLetter(ctx, raw, "no_url", err.Error())
	}
	log.Info("url normalized",
		slog.String("canonical_url", canonURL),
		slog.String("domain", domainName))

	res, usedHeadless, err := w.fetchWithFallback(ctx, log, canonURL)
	if err != nil {
		if domain.IsRetryableFetch(err) {
			return w.retry(ctx, raw, job, "FETCH_RETRY", err.Error())
		}
		return w.deadLetter(ctx, raw, "FETCH_NONRETRY", err.Error())
	}

	ctype := strings.ToLower(res.ContentType)
	if !strings.Contains(ctype, "html") && !strings.HasSuffix(strings.ToLower(res.FinalURL), ".html") {
		log.Warn("unsupported mime",
			slog.String("content_type", res.ContentType),
			slog.String("final_url", res.FinalURL))
		return w.deadLetter(ctx, raw, "UNSUPPORTED_MIME", res.ContentType)
	}

	html := normalize.DecodeBody(res.Body, res.ContentType)
	text, headings, author := w.extract(html)
	words := normalize.WordCount(text)
	isPaywalled := paywallHeuristic(html, words)
	log.Info("extracted",
		slog.Int("word_count", words),
		slog.Int("headings", len(headings)),
		slog.Bool("is_paywalled", isPaywalled))

	// Empty extraction gets one headless shot, unless headless already
	// produced this document.
	if text == "" && !usedHeadless {
		if res2, ok := w.fetcher.FetchHeadless(ctx, res.FinalURL); ok {
			text, headings, author = w.extract(string(res2.Body))
			words = normalize.WordCount(text)
			log.Info("headless content fallback", slog.Int("word_count", words))
		}
	}
	if text == "" {
		log.Error("empty content after extraction")
		return w.deadLetter(ctx, raw, "EMPTY_CONTENT", "no text after extraction")
	}

	lang := normalize.DetectLanguage(text, w.cfg.AllowedLangs)
	if lang == normalize.Undetermined {
		log.Warn("language undetected")
	}
	hash := normalize.ContentHash(lang, domainName, text)

	var authorPtr *string
	if author != "" {
		authorPtr = &author
	}
	articleID, err := w.store.UpsertAndLink(ctx, domain.Article{
		Language:    lang,
		Text:        text,
		WordCount:   words,
		ContentHash: hash,
	}, job.Story.ID, &domainName, authorPtr)
	if err != nil {
		log.Error("article transaction failed", slog.Any("error", err))
		return w.retry(ctx, raw, job, "DB_ERROR", err.Error())
	}
	log.Info("article stored", slog.String("article_id", articleID))

	payload := buildSummarizerPayload(job.TraceID, job.Story, articleID, lang, text, headings,
		false, isPaywalled, domainName, res.FinalURL)
	if err := w.queue.PushHead(ctx, w.cfg.SummarizerQueue, payload); err != nil {
		log.Error("summarizer enqueue failed", slog.Any("error", err))
		return w.retry(ctx, raw, job, "REDIS_OUT", err.Error())
	}
	if _, err := w.idem.Claim(ctx, domain.ScraperDoneKey(job.Story.ID), domain.IdempotencyTTL); err != nil {
		log.Warn("done marker write failed", slog.Any("error", err))
	}

	observability.JobsCompleted.WithLabelValues(w.cfg.InputQueue).Inc()
	log.Info("job completed", slog.String("article_id", articleID))
	return nil
}

// fetchWithFallback tries the direct fetch, then headless for retryable
// failures. usedHeadless tells the caller the headless budget is spent.
func (w *Worker) fetchWithFallback(ctx context.Context, log *slog.Logger, url string) (res *domain.FetchResult, usedHeadless bool, err error) {
	res, err = w.fetcher.Fetch(ctx, url)
	if err == nil {
		return res, false, nil
	}
	if !domain.IsRetryableFetch(err) {
		log.Error("fetch non-retryable", slog.Any("error", err))
		return nil, false, err
	}
	log.Warn("fetch retryable, trying headless", slog.Any("error", err))
	if res2, ok := w.fetcher.FetchHeadless(ctx, url); ok {
		return res2, true, nil
	}
	return nil, false, err
}

// paywallHeuristic flags thin pages that still mention a subscription wall.
func paywallHeuristic(html string, words int) bool {
	if words >= 100 {
		return false
	}
	l := strings.ToLower(html)
	return strings.Contains(l, "subscribe") || strings.Contains(l, "paywall")
}

func (w *Worker) retry(ctx context.Context, raw []byte, job domain.IngestJob, reason, errMsg string) error {
	attempt := job.Attempt + 1
	if attempt > w.cfg.ScraperMaxRetries() {
		slog.Error("max retries exceeded",
			slog.String("trace_id", job.TraceID),
			slog.String("story_id", job.Story.ID),
			slog.Int("attempt", attempt),
			slog.String("reason", reason))
		job.Attempt = attempt
		quoted, _ := json.Marshal(job)
		return w.deadLetter(ctx, quoted, reason, errMsg)
	}

	w.mu.Lock()
	delay := domain.RetryBackoff(attempt, w.rng)
	w.mu.Unlock()
	job.Attempt = attempt
	job.VisibleAt = domain.NowMS() + delay.Milliseconds()

	observability.JobsRetried.WithLabelValues(w.cfg.ScraperRetryQueue(), reason).Inc()
	slog.Warn("job requeued",
		slog.String("trace_id", job.TraceID),
		slog.String("story_id", job.Story.ID),
		slog.Int("attempt", attempt),
		slog.String("reason", reason),
		slog.Int64("delay_ms", delay.Milliseconds()))
	return w.queue.PushTail(ctx, w.cfg.ScraperRetryQueue(), job)
}

// deadLetter quotes the input verbatim alongside the terminal reason.
func (w *Worker) deadLetter(ctx context.Context, raw []byte, reason, errMsg string) error {
	entry := domain.DLQEntry{Reason: reason, Err: errMsg, Job: json.RawMessage(raw)}
	observability.JobsDeadLettered.WithLabelValues(w.cfg.ScraperDLQ(), reason).Inc()
	slog.Error("job dead-lettered",
		slog.String("reason", reason),
		slog.String("queue", w.cfg.ScraperDLQ()))
	return w.queue.PushTail(ctx, w.cfg.ScraperDLQ(), entry)
}

// Run processes jobs until ctx is cancelled, pausing after each success for
// the configured politeness delay.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("scraper started",
		slog.String("input", w.cfg.InputQueue),
		slog.String("retry", w.cfg.ScraperRetryQueue()),
		slog.String("dlq", w.cfg.ScraperDLQ()),
		slog.Int("max_retries", w.cfg.ScraperMaxRetries()),
		slog.Bool("headless_enabled", w.cfg.HeadlessEnabled))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("loop error", slog.Any("error", err))
			sleepCtx(ctx, 500*time.Millisecond)
			continue
		}
		if processed && w.cfg.PostScrapeDelaySeconds > 0 {
			sleepCtx(ctx, time.Duration(w.cfg.PostScrapeDelaySeconds)*time.Second)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
