// Package ai implements the model client behind the summarizer: a real
// OpenAI-compatible chat-completions client and a deterministic stub for
// keyless development runs.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

const systemPrompt = "You are an expert at structured data extraction. " +
	"Convert the given article context into the specified structure."

// Client calls an OpenAI-compatible /chat/completions endpoint and parses the
// message content into the summarization schema. One call per Summarize; the
// caller owns the retry policy.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs the real client. The HTTP timeout is the configured LLM
// budget so a hung upstream surfaces as a timeout-class failure.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, hc: &http.Client{Timeout: cfg.LLMTimeout}}
}

// userPayload is the single JSON object sent as the user message.
type userPayload struct {
	Task         string         `json:"task"`
	Context      payloadContext `json:"context"`
	Requirements map[string]any `json:"requirements"`
}

type payloadContext struct {
	Title         string            `json:"title,omitempty"`
	Domain        string            `json:"domain,omitempty"`
	URL           string            `json:"url,omitempty"`
	Language      string            `json:"language,omitempty"`
	IsPDF         bool              `json:"is_pdf"`
	IsPaywalled   bool              `json:"is_paywalled"`
	Headings      []string          `json:"headings,omitempty"`
	TextHead      string            `json:"text_head,omitempty"`
	TextTail      string            `json:"text_tail,omitempty"`
	HNMetrics     *domain.HNMetrics `json:"hn_metrics,omitempty"`
	CandidateTags []string          `json:"candidate_tags,omitempty"`
}

func buildUserPayload(in domain.SummarizerIn) userPayload {
	return userPayload{
		Task: "Summarize and classify the article into the target schema.",
		Context: payloadContext{
			Title:         in.Story.Title,
			Domain:        in.Story.Domain,
			URL:           in.Story.URL,
			Language:      in.Article.Language,
			IsPDF:         in.Article.IsPDF,
			IsPaywalled:   in.Article.IsPaywalled,
			Headings:      in.Article.Headings,
			TextHead:      in.Article.TextHead,
			TextTail:      in.Article.TextTail,
			HNMetrics:     in.Metrics,
			CandidateTags: in.Hints.CandidateTags,
		},
		Requirements: map[string]any{
			"summary":                     "<= 2 short paragraphs or 3 bullets",
			"classification.type.options": []string{"news", "article", "discussion", "research", "other"},
			"ui.summary_140":              "<= 140 chars",
		},
	}
}

// Summarize performs one chat-completions call and parses the returned JSON
// into domain.LLMResult. Failures come back as *domain.LLMError classified as
// timeout, json_parse_failed, or llm_failed.
func (c *Client) Summarize(ctx context.Context, in domain.SummarizerIn) (*domain.LLMResult, error) {
	if c.cfg.LLMAPIKey == "" {
		return nil, domain.NewLLMError(domain.LLMFailed, errors.New("LLM_API_KEY is required"))
	}

	user, err := json.Marshal(buildUserPayload(in))
	if err != nil {
		return nil, domain.NewLLMError(domain.LLMFailed, err)
	}

	reqBody := map[string]any{
		"model":       c.cfg.LLMModel,
		"temperature": c.cfg.LLMTemperature,
		"max_tokens":  c.cfg.LLMMaxTokens,
		"response_format": map[string]string{
			"type": "json_object",
		},
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": string(user)},
		},
	}
	b, _ := json.Marshal(reqBody)

	start := time.Now()
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.LLMAPIBase, "/")+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return nil, domain.NewLLMError(domain.LLMFailed, err)
	}
	r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	r.Header.Set("Content-Type", "application/json")
	// Per-call id so provider-side logs can be matched to ours.
	r.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.hc.Do(r)
	if err != nil {
		if isTimeout(err) {
			observability.LLMAttempts.WithLabelValues("timeout").Inc()
			return nil, domain.NewLLMError(domain.LLMTimeout, err)
		}
		observability.LLMAttempts.WithLabelValues("llm_failed").Inc()
		return nil, domain.NewLLMError(domain.LLMFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		observability.LLMAttempts.WithLabelValues("llm_failed").Inc()
		return nil, domain.NewLLMError(domain.LLMFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.LLMAttempts.WithLabelValues("llm_failed").Inc()
		snippet := string(bodyBytes)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		slog.Warn("llm provider non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("model", c.cfg.LLMModel),
			slog.String("body", snippet))
		return nil, domain.NewLLMError(domain.LLMFailed, fmt.Errorf("chat status %d", resp.StatusCode))
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		observability.LLMAttempts.WithLabelValues("json_parse_failed").Inc()
		return nil, domain.NewLLMError(domain.LLMParse, err)
	}
	if len(out.Choices) == 0 {
		observability.LLMAttempts.WithLabelValues("llm_failed").Inc()
		return nil, domain.NewLLMError(domain.LLMFailed, errors.New("empty choices"))
	}

	content := stripFences(out.Choices[0].Message.Content)
	var result domain.LLMResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		observability.LLMAttempts.WithLabelValues("json_parse_failed").Inc()
		return nil, domain.NewLLMError(domain.LLMParse, err)
	}

	observability.LLMAttempts.WithLabelValues("ok").Inc()
	slog.Info("llm call done",
		slog.String("model", c.cfg.LLMModel),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
	return &result, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// stripFences removes a ```json ... ``` wrapper some models insist on.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}

var _ domain.AIClient = (*Client)(nil)
