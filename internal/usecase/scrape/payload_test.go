package scrape

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/story-enricher/internal/domain"
)

func TestFirstParagraphs_WholeParagraphsUnderBudget(t *testing.T) {
	t.Parallel()
	text := "first para\n\nsecond para\n\nthird para"
	got := firstParagraphs(text, 25)
	assert.Equal(t, "first para\n\nsecond para", got)
}

func TestFirstParagraphs_OversizedFirstParagraphKept(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 500)
	got := firstParagraphs(long+"\n\nshort", 100)
	assert.Equal(t, long[:100], got, "lone oversized paragraph is hard-capped")
}

func TestParagraphWindows_BudgetIsCharacters(t *testing.T) {
	t.Parallel()
	// Two 60-character CJK paragraphs: 180 bytes each, 120 characters total.
	para := strings.Repeat("語", 60)
	text := para + "\n\n" + para

	both := firstParagraphs(text, 130)
	assert.Equal(t, 2, strings.Count(both, para), "both paragraphs fit a 130-char budget")

	capped := firstParagraphs(text, 50)
	assert.Equal(t, 50, utf8.RuneCountInString(capped))
	assert.True(t, utf8.ValidString(capped), "hard cap must not split a rune")

	tail := lastParagraphs(text, 70)
	assert.Equal(t, para, tail, "one whole paragraph from the end")
}

func TestLastParagraphs_TakesFromEnd(t *testing.T) {
	t.Parallel()
	text := "first para\n\nsecond para\n\nthird para"
	got := lastParagraphs(text, 25)
	assert.Equal(t, "second para\n\nthird para", got)
}

func TestCandidateTags(t *testing.T) {
	t.Parallel()
	tags := candidateTags(
		"Show HN: Rust Compiler Internals",
		[]string{"Parsing the AST", "Codegen"},
		"/posts/rust/compilers",
	)
	assert.Contains(t, tags, "Show")
	assert.Contains(t, tags, "Rust")
	assert.Contains(t, tags, "Parsing")
	assert.LessOrEqual(t, len(tags), 6)

	// Case-insensitive de-dupe: "Rust" from the title wins over "rust" from
	// the path.
	count := 0
	for _, tag := range tags {
		if strings.EqualFold(tag, "rust") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCandidateTags_PathSegmentsFiltered(t *testing.T) {
	t.Parallel()
	tags := candidateTags("", nil, "/2024/ab-cd/go/averyveryverylongsegmentoverlimit")
	assert.Contains(t, tags, "Go")
	assert.NotContains(t, tags, "2024")
	assert.NotContains(t, tags, "Ab-cd")
}

func TestBuildSummarizerPayload(t *testing.T) {
	t.Parallel()
	text := "Intro paragraph about Go.\n\nBody paragraph with detail.\n\nClosing thoughts."
	in := buildSummarizerPayload(
		"t1",
		domain.StoryRef{ID: "s1", Title: "Go Memory Model", URL: "https://example.com/post"},
		"a1", "en", text,
		[]string{"One", "Two", "Three", "Four", "Five", "Six"},
		false, true, "example.com", "https://example.com/post",
	)

	assert.Equal(t, "t1", in.TraceID)
	assert.Equal(t, "a1", in.Article.ID)
	assert.Equal(t, "en", in.Article.Language)
	assert.True(t, in.Article.IsPaywalled)
	assert.Equal(t, "example.com", in.Story.Domain)
	assert.Len(t, in.Article.Headings, 5, "headings capped at five")
	assert.Equal(t, 0, in.Attempt)
	assert.Equal(t, domain.SchemaVersion, in.SchemaVersion)
	assert.InDelta(t, 0.5, in.Hints.SourceReputation, 1e-9)

	require.LessOrEqual(t, len(in.Article.TextHead), 900)
	require.LessOrEqual(t, len(in.Article.TextTail), 600)
	assert.True(t, strings.HasPrefix(in.Article.TextHead, "Intro paragraph"))
	assert.True(t, strings.HasSuffix(in.Article.TextTail, "Closing thoughts."))
}

func TestPaywallHeuristic(t *testing.T) {
	t.Parallel()
	assert.True(t, paywallHeuristic("<div>Subscribe to continue</div>", 50))
	assert.True(t, paywallHeuristic("<div>hit the PAYWALL</div>", 10))
	assert.False(t, paywallHeuristic("<div>Subscribe to continue</div>", 500))
	assert.False(t, paywallHeuristic("<div>free article</div>", 50))
}
