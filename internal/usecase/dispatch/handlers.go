package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/story-enricher/internal/adapter/ai"
	"github.com/fairyhunter13/story-enricher/internal/domain"
	"github.com/fairyhunter13/story-enricher/internal/normalize"
)

// Task is the dispatcher job envelope. Every kind reads the subset of fields
// it needs; Attempt drives the retry-vs-DLQ decision.
type Task struct {
	StoryID   string `json:"story_id,omitempty"`
	ArticleID string `json:"article_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
	Model     string `json:"model,omitempty"`
	ModelKey  string `json:"model_key,omitempty"`
	Lang      string `json:"lang,omitempty"`
	Hours     int    `json:"hours,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
}

// Result carries the handler outputs the follow-on logic inspects.
type Result struct {
	ArticleID string
	Tags      []string
	Updated   int
}

// StoryStore is the story-side persistence the handlers need.
type StoryStore interface {
	GetURLTitle(ctx context.Context, storyID string) (*string, *string, error)
	LinkArticle(ctx context.Context, storyID, articleID string) error
	GetOrCreateTag(ctx context.Context, slug, name, kind string) (string, error)
	AttachTagToStory(ctx context.Context, storyID, tagID string) error
	RefreshRecentHotScores(ctx context.Context, hours int) (int, error)
}

// ArticleTexts is the article-side persistence the handlers need.
type ArticleTexts interface {
	UpsertFromText(ctx context.Context, text, language string, html *string) (string, error)
	GetText(ctx context.Context, articleID string) (string, string, error)
}

// SummaryStore persists heuristic summaries.
type SummaryStore interface {
	Replace(ctx context.Context, s domain.Summary) error
}

// EmbeddingStore persists dev embeddings.
type EmbeddingStore interface {
	Dims(ctx context.Context, modelKey string) (int, error)
	Upsert(ctx context.Context, articleID, modelKey string, vector []float32) error
}

// tagKeywords is the fixed keyword table behind the TAG task.
var tagKeywords = map[string][]string{
	"ai":       {"ai", "artificial intelligence", "gpt", "llm", "openai"},
	"security": {"security", "vuln", "cve", "xss", "csrf", "rce", "encryption"},
	"show":     {"show hn"},
}

var errInvalidJob = errors.New("invalid job payload")

// Handlers implements the five task bodies over injected stores.
type Handlers struct {
	Stories    StoryStore
	Articles   ArticleTexts
	Summaries  SummaryStore
	Embeddings EmbeddingStore
	Fetcher    domain.Fetcher
	Extract    func(html string) (string, []string, string)
}

// FetchArticle fetches the story URL, extracts paragraph text, upserts the
// article and links it to the story.
func (h *Handlers) FetchArticle(ctx context.Context, t Task) (Result, error) {
	if t.StoryID == "" {
		return Result{}, errInvalidJob
	}
	url := t.URL
	if url == "" {
		u, _, err := h.Stories.GetURLTitle(ctx, t.StoryID)
		if err != nil {
			return Result{}, err
		}
		if u == nil || *u == "" {
			return Result{}, errInvalidJob
		}
		url = *u
	}
	res, err := h.Fetcher.Fetch(ctx, url)
	if err != nil {
		return Result{}, err
	}
	text, _, _ := h.Extract(normalize.DecodeBody(res.Body, res.ContentType))
	if text == "" {
		return Result{}, fmt.Errorf("no text extracted from %s", url)
	}
	articleID, err := h.Articles.UpsertFromText(ctx, text, "en", nil)
	if err != nil {
		return Result{}, err
	}
	if err := h.Stories.LinkArticle(ctx, t.StoryID, articleID); err != nil {
		return Result{}, err
	}
	return Result{ArticleID: articleID}, nil
}

// Summarize writes a heuristic leading-sentences summary for the article.
func (h *Handlers) Summarize(ctx context.Context, t Task) (Result, error) {
	if t.ArticleID == "" {
		return Result{}, errInvalidJob
	}
	text, articleLang, err := h.Articles.GetText(ctx, t.ArticleID)
	if err != nil {
		return Result{}, err
	}
	model := t.Model
	if model == "" {
		model = "heuristic"
	}
	lang := t.Lang
	if lang == "" {
		lang = articleLang
	}
	summary := leadingSentences(text, 3, 800)
	if summary == "" {
		return Result{}, fmt.Errorf("article %s has no text to summarize", t.ArticleID)
	}
	err = h.Summaries.Replace(ctx, domain.Summary{
		ArticleID: t.ArticleID,
		Model:     model,
		Lang:      lang,
		Summary:   summary,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{ArticleID: t.ArticleID}, nil
}

// Embed writes the deterministic dev embedding sized by the model registry.
func (h *Handlers) Embed(ctx context.Context, t Task) (Result, error) {
	if t.ArticleID == "" {
		return Result{}, errInvalidJob
	}
	modelKey := t.ModelKey
	if modelKey == "" {
		modelKey = "default"
	}
	dims, err := h.Embeddings.Dims(ctx, modelKey)
	if err != nil {
		return Result{}, err
	}
	text, _, err := h.Articles.GetText(ctx, t.ArticleID)
	if err != nil {
		return Result{}, err
	}
	vec := ai.DeterministicEmbed(text, dims)
	if err := h.Embeddings.Upsert(ctx, t.ArticleID, modelKey, vec); err != nil {
		return Result{}, err
	}
	return Result{ArticleID: t.ArticleID}, nil
}

// Tag matches the keyword table against the job text and story title and
// attaches every hit.
func (h *Handlers) Tag(ctx context.Context, t Task) (Result, error) {
	if t.StoryID == "" {
		return Result{}, errInvalidJob
	}
	title := t.Title
	if title == "" {
		_, dbTitle, err := h.Stories.GetURLTitle(ctx, t.StoryID)
		if err != nil {
			return Result{}, err
		}
		if dbTitle != nil {
			title = *dbTitle
		}
	}
	low := strings.ToLower(t.Text + " " + title)

	var matched []string
	for slug, kws := range tagKeywords {
		for _, kw := range kws {
			if strings.Contains(low, kw) {
				matched = append(matched, slug)
				break
			}
		}
	}
	for _, slug := range matched {
		tagID, err := h.Stories.GetOrCreateTag(ctx, slug, "", "tech")
		if err != nil {
			return Result{}, err
		}
		if err := h.Stories.AttachTagToStory(ctx, t.StoryID, tagID); err != nil {
			return Result{}, err
		}
	}
	return Result{Tags: matched}, nil
}

// RefreshStats recomputes hot scores for recently created stories.
func (h *Handlers) RefreshStats(ctx context.Context, t Task) (Result, error) {
	hours := t.Hours
	if hours <= 0 {
		hours = 48
	}
	n, err := h.Stories.RefreshRecentHotScores(ctx, hours)
	if err != nil {
		return Result{}, err
	}
	return Result{Updated: n}, nil
}

// leadingSentences takes the first n sentences, capped at maxLen bytes.
func leadingSentences(text string, n, maxLen int) string {
	t := strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if t == "" {
		return ""
	}
	var out []string
	for _, s := range strings.SplitAfter(t, ". ") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == n {
			break
		}
	}
	joined := strings.Join(out, " ")
	if len(joined) > maxLen {
		joined = joined[:maxLen]
	}
	return joined
}
