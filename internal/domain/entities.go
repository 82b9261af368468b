// Package domain holds the entities, wire envelopes, error taxonomy and ports
// shared by the scraper, summarizer and dispatcher workers.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrBadPayload      = errors.New("bad payload")
	ErrNoURL           = errors.New("no url")
	ErrNotFound        = errors.New("not found")
	ErrUnsupportedMIME = errors.New("unsupported mime")
	ErrEmptyContent    = errors.New("empty content")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrInternal        = errors.New("internal error")
)

// FetchError classifies a failed fetch. Retryable covers transient transport
// failures plus the status set edge networks use for rate limits and bot
// walls; every other 4xx is definitive.
type FetchError struct {
	Reason    string
	Retryable bool
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch: %s", e.Reason) }

// RetryableFetch builds a transient fetch failure.
func RetryableFetch(reason string) *FetchError { return &FetchError{Reason: reason, Retryable: true} }

// NonRetryableFetch builds a definitive fetch failure.
func NonRetryableFetch(reason string) *FetchError { return &FetchError{Reason: reason} }

// IsRetryableFetch reports whether err is a fetch failure worth retrying.
func IsRetryableFetch(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable
}

// LLMErrorKind enumerates the summarizer's model-call failure classes.
type LLMErrorKind string

const (
	LLMTimeout LLMErrorKind = "timeout"
	LLMParse   LLMErrorKind = "json_parse_failed"
	LLMFailed  LLMErrorKind = "llm_failed"
)

// LLMError wraps a model-call failure with its classification. Only LLMError
// values are retried inside a summarizer job; anything else breaks the loop.
type LLMError struct {
	Kind LLMErrorKind
	Err  error
}

func (e *LLMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Kind, e.Err)
	}
	return "llm " + string(e.Kind)
}

func (e *LLMError) Unwrap() error { return e.Err }

// NewLLMError builds an LLMError of the given kind.
func NewLLMError(kind LLMErrorKind, err error) *LLMError { return &LLMError{Kind: kind, Err: err} }

// AsLLMError returns the LLMError wrapped in err, if any.
func AsLLMError(err error) (*LLMError, bool) {
	var le *LLMError
	ok := errors.As(err, &le)
	return le, ok
}

// DLQReason maps an LLM failure class to the job disposition reason.
func DLQReason(kind LLMErrorKind) string {
	switch kind {
	case LLMTimeout:
		return "LLM_TIMEOUT"
	case LLMParse:
		return "JSON_PARSE"
	default:
		return "UNKNOWN"
	}
}

// Article is the persisted extraction result. ContentHash is the dedup key:
// two identical extractions collapse to one row.
type Article struct {
	ID          string
	Language    string
	HTML        *string
	Text        string
	WordCount   int
	ContentHash string
}

// Story is the ingest-side row the scraper links articles to.
type Story struct {
	ID        string
	URL       string
	Title     string
	ArticleID *string
	Domain    *string
	Author    *string
	CreatedAt time.Time
}

// Summary is logically unique on (article_id, model, lang); persistence is
// delete-then-insert so replays replace rather than duplicate.
type Summary struct {
	ArticleID string
	Model     string
	Lang      string
	Summary   string
}

// Ports

// Queue is the Redis-list FIFO protocol. PushHead items preempt PushTail
// items because Pop removes from the head.
type Queue interface {
	// Pop blocks up to timeout across queues in the order given and returns
	// the first message, or nil on timeout.
	Pop(ctx context.Context, queues []string, timeout time.Duration) (*Message, error)
	PushHead(ctx context.Context, queue string, payload any) error
	PushTail(ctx context.Context, queue string, payload any) error
}

// Message is one popped queue item. Raw is the verbatim payload; Poisoned
// reports it is not a JSON object and must not be requeued.
type Message struct {
	Queue    string
	Raw      []byte
	Poisoned bool
}

// Idempotency is the set-once completion registry. Claim is authoritative
// (set-if-absent grants exclusive rights); Check is the advisory existence
// test the scraper uses before starting multi-step work.
type Idempotency interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Check(ctx context.Context, key string) (bool, error)
}

// Fetcher retrieves a URL directly or through the headless fallback.
// FetchHeadless reports failure via ok=false rather than an error so the
// caller decides between retry and DLQ.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
	FetchHeadless(ctx context.Context, url string) (res *FetchResult, ok bool)
}

// FetchResult is the 4-tuple both fetch paths return.
type FetchResult struct {
	FinalURL    string
	ContentType string
	Body        []byte
	Header      map[string]string
}

// AIClient produces the schema-bounded summarization for one article.
type AIClient interface {
	Summarize(ctx context.Context, in SummarizerIn) (*LLMResult, error)
}

// ArticleStore runs the scraper's single write transaction.
type ArticleStore interface {
	// UpsertAndLink inserts the article (returning the existing id on a
	// content_hash conflict) and links it to the story, filling domain and
	// author only when currently null.
	UpsertAndLink(ctx context.Context, a Article, storyID string, domain, author *string) (string, error)
}

// IdempotencyTTL is how long completion markers live.
const IdempotencyTTL = 7 * 24 * time.Hour

// ScraperDoneKey is the scraper's completion marker for a story.
func ScraperDoneKey(storyID string) string { return "scraper:done:" + storyID }

// SummarizerDoneKey is the summarizer's completion marker for an article+model.
func SummarizerDoneKey(articleID, model string) string {
	return "summarizer:done:" + articleID + ":" + model
}
