package domain

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is the wire schema version stamped into every queue payload.
const SchemaVersion = 1

// StoryRef is the story fragment carried inside job envelopes.
type StoryRef struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	HNID      *int64 `json:"hn_id,omitempty"`
	Source    string `json:"source,omitempty"`
	Domain    string `json:"domain,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// IngestJob is the envelope on ingest:out and on the retry queues. VisibleAt
// is a wall-clock ms epoch before which a retry consumer must re-defer the
// job instead of processing it.
type IngestJob struct {
	TraceID   string   `json:"trace_id"`
	Story     StoryRef `json:"story"`
	Attempt   int      `json:"attempt"`
	VisibleAt int64    `json:"visible_at,omitempty"`
}

// ArticleMeta is the bounded article view handed to the summarizer. TextHead
// and TextTail are whole-paragraph windows; the full text never crosses the
// queue.
type ArticleMeta struct {
	ID          string   `json:"id" validate:"required"`
	Language    string   `json:"language" validate:"required,min=2,max=5"`
	WordCount   int      `json:"word_count"`
	IsPDF       bool     `json:"is_pdf"`
	IsPaywalled bool     `json:"is_paywalled"`
	TextHead    string   `json:"text_head"`
	Headings    []string `json:"headings"`
	TextTail    string   `json:"text_tail"`
}

// Hints carries soft signals for classification.
type Hints struct {
	CandidateTags    []string `json:"candidate_tags"`
	SourceReputation float64  `json:"source_reputation"`
}

// HNMetrics is the optional popularity snapshot.
type HNMetrics struct {
	Points     *int   `json:"points,omitempty"`
	Comments   *int   `json:"comments,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
}

// SummarizerIn is the summarizer:in envelope. VisibleAt is only present on
// retry copies.
type SummarizerIn struct {
	TraceID       string      `json:"trace_id" validate:"required"`
	Story         StoryRef    `json:"story"`
	Article       ArticleMeta `json:"article"`
	Hints         Hints       `json:"hints"`
	Metrics       *HNMetrics  `json:"metrics"`
	Attempt       int         `json:"attempt"`
	VisibleAt     int64       `json:"visible_at,omitempty"`
	SchemaVersion int         `json:"schema_version"`
}

// Classification is the typed classification block of the summarizer output.
type Classification struct {
	PrimaryCategory string   `json:"primary_category,omitempty"`
	Type            string   `json:"type,omitempty"`
	Tags            []string `json:"tags"`
	Topics          []string `json:"topics"`
}

// LinkProps describes presentation-relevant link properties.
type LinkProps struct {
	Paywall *bool  `json:"paywall,omitempty"`
	Format  string `json:"format,omitempty"`
	IsPDF   *bool  `json:"is_pdf,omitempty"`
}

// UILayer is the presentation block of the summarizer output.
type UILayer struct {
	Summary140     string     `json:"summary_140,omitempty"`
	Quicktake      []string   `json:"quicktake,omitempty"`
	Audience       []string   `json:"audience,omitempty"`
	ImpactScore    *int       `json:"impact_score,omitempty"`
	Confidence     *float64   `json:"confidence,omitempty"`
	ReadingTimeMin *int       `json:"reading_time_min,omitempty"`
	LinkProps      *LinkProps `json:"link_props,omitempty"`
}

// EmbeddingInfo is the optional embedding block of the summarizer output.
type EmbeddingInfo struct {
	ModelKey   string    `json:"model_key,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	Vector     []float64 `json:"vector,omitempty"`
}

// Timestamps carries the output-side wall-clock markers.
type Timestamps struct {
	SummarizedAt string `json:"summarized_at"`
}

// SummarizerOut is the summarizer:out envelope.
type SummarizerOut struct {
	TraceID        string         `json:"trace_id"`
	StoryID        string         `json:"story_id"`
	ArticleID      string         `json:"article_id"`
	Model          string         `json:"model"`
	Lang           string         `json:"lang"`
	Summary        string         `json:"summary"`
	Classification Classification `json:"classification"`
	UI             UILayer        `json:"ui"`
	Embedding      *EmbeddingInfo `json:"embedding,omitempty"`
	Timestamps     Timestamps     `json:"timestamps"`
	SchemaVersion  int            `json:"schema_version"`
}

// LLMResult is the typed shape parsed out of the model response. All fields
// are optional; validation and normalization happen during output assembly.
type LLMResult struct {
	Summary        string          `json:"summary,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	UI             *UILayer        `json:"ui,omitempty"`
}

// DLQEntry quotes the failed input verbatim alongside the failure reason so
// entries can be reprocessed by hand. Scraper entries use Job, summarizer
// entries use Payload.
type DLQEntry struct {
	Reason  string          `json:"reason"`
	Err     string          `json:"err"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Job     json.RawMessage `json:"job,omitempty"`
}

// RawStub wraps a non-JSON queue payload the way consumers quote poisoned
// messages: {"raw": "<verbatim>"}.
func RawStub(raw []byte) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return b
}

// NewTraceID mints a lexically sortable correlation id for jobs that arrive
// without one.
func NewTraceID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.DefaultEntropy()).String()
}

// NowMS is the wall clock in milliseconds, the unit visible_at is written in.
func NowMS() int64 { return time.Now().UnixMilli() }

// RetryBackoff computes the visibility delay for the given attempt:
// 2^attempt seconds with up to +25% jitter.
func RetryBackoff(attempt int, rng *rand.Rand) time.Duration {
	base := float64(int64(1)<<uint(attempt)) * 1000
	jitter := 1.0 + rng.Float64()*0.25
	return time.Duration(base*jitter) * time.Millisecond
}
