package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// Mock is the keyless-dev AIClient: a stable, input-derived summarization so
// the pipeline runs end to end without an upstream model.
type Mock struct{}

// NewMock constructs the deterministic client.
func NewMock() *Mock { return &Mock{} }

// Summarize builds a summary from the payload's own text and title. The same
// input always yields the same output.
func (m *Mock) Summarize(_ context.Context, in domain.SummarizerIn) (*domain.LLMResult, error) {
	title := in.Story.Title
	if title == "" {
		title = in.Story.URL
	}
	head := firstSentences(in.Article.TextHead, 2)
	summary := strings.TrimSpace(fmt.Sprintf("%s. %s", strings.TrimRight(title, "."), head))
	if summary == "" {
		summary = "No content available."
	}

	tags := in.Hints.CandidateTags
	if len(tags) == 0 && in.Story.Domain != "" {
		tags = []string{in.Story.Domain}
	}

	short := summary
	if len([]rune(short)) > 140 {
		short = string([]rune(short)[:137]) + "..."
	}
	impact := 50
	confidence := 0.3
	return &domain.LLMResult{
		Summary: summary,
		Classification: &domain.Classification{
			Type:   "article",
			Tags:   tags,
			Topics: in.Article.Headings,
		},
		UI: &domain.UILayer{
			Summary140:  short,
			Audience:    []string{"Backend Engineers"},
			ImpactScore: &impact,
			Confidence:  &confidence,
		},
	}, nil
}

func firstSentences(text string, n int) string {
	var out []string
	for _, s := range strings.SplitAfterN(text, ". ", n+1) {
		if len(out) == n {
			break
		}
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, " ")
}

// DeterministicEmbed generates a stable pseudo-embedding from the text: the
// PRNG is seeded from the first 8 bytes of the SHA-256 of the text, values are
// drawn via the Box-Muller transform, and the vector is L2-normalized.
// Dev-only; no external model call.
func DeterministicEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	if text == "" || dims <= 0 {
		return vec
	}
	h := sha256.Sum256([]byte(text))
	seed := binary.BigEndian.Uint64(h[:8])
	rng := rand.New(rand.NewSource(int64(seed)))

	buf := make([]float64, 0, dims+1)
	for len(buf) < dims-1 {
		u1 := math.Max(rng.Float64(), 1e-12)
		u2 := rng.Float64()
		r := math.Sqrt(-2.0 * math.Log(u1))
		theta := 2.0 * math.Pi * u2
		buf = append(buf, r*math.Cos(theta), r*math.Sin(theta))
	}
	if len(buf) < dims {
		buf = append(buf, rng.Float64()*2-1)
	}
	buf = buf[:dims]

	var norm float64
	for _, x := range buf {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i, x := range buf {
		vec[i] = float32(x / norm)
	}
	return vec
}

var _ domain.AIClient = (*Mock)(nil)
