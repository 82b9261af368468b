package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

func testInput() domain.SummarizerIn {
	return domain.SummarizerIn{
		TraceID: "t1",
		Story:   domain.StoryRef{ID: "s1", Title: "Go Generics Deep Dive", URL: "https://example.com/a", Domain: "example.com"},
		Article: domain.ArticleMeta{
			ID: "a1", Language: "en", WordCount: 500,
			TextHead: "Generics arrived in Go 1.18. They change API design.",
			TextTail: "In conclusion, constraints matter.",
			Headings: []string{"Type Parameters"},
		},
		Hints:         domain.Hints{CandidateTags: []string{"Go"}, SourceReputation: 0.5},
		SchemaVersion: 1,
	}
}

func chatResponse(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return b
}

func testClientConfig(base string) config.Config {
	return config.Config{
		LLMAPIKey:      "test-key",
		LLMAPIBase:     base,
		LLMModel:       "gpt-4.1-mini",
		LLMTemperature: 0.2,
		LLMMaxTokens:   800,
		LLMTimeout:     2 * time.Second,
	}
}

func TestSummarize_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4.1-mini", req["model"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		userMsg := msgs[1].(map[string]any)["content"].(string)
		assert.Contains(t, userMsg, "text_head")
		assert.Contains(t, userMsg, "Generics arrived")

		_, _ = w.Write(chatResponse(`{"summary":"Generics explained.","classification":{"type":"article","tags":["Go"]},"ui":{"summary_140":"Generics explained."}}`))
	}))
	defer srv.Close()

	c := New(testClientConfig(srv.URL))
	res, err := c.Summarize(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "Generics explained.", res.Summary)
	require.NotNil(t, res.Classification)
	assert.Equal(t, []string{"Go"}, res.Classification.Tags)
}

func TestSummarize_FencedJSONAccepted(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatResponse("```json\n{\"summary\":\"fenced\"}\n```"))
	}))
	defer srv.Close()

	c := New(testClientConfig(srv.URL))
	res, err := c.Summarize(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "fenced", res.Summary)
}

func TestSummarize_ParseFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(chatResponse("this is not json"))
	}))
	defer srv.Close()

	c := New(testClientConfig(srv.URL))
	_, err := c.Summarize(context.Background(), testInput())
	le, ok := domain.AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, domain.LLMParse, le.Kind)
}

func TestSummarize_ServerErrorIsLLMFailed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testClientConfig(srv.URL))
	_, err := c.Summarize(context.Background(), testInput())
	le, ok := domain.AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, domain.LLMFailed, le.Kind)
}

func TestSummarize_TimeoutClassified(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	cfg := testClientConfig(srv.URL)
	cfg.LLMTimeout = 200 * time.Millisecond
	c := New(cfg)
	_, err := c.Summarize(context.Background(), testInput())
	le, ok := domain.AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, domain.LLMTimeout, le.Kind)
}

func TestSummarize_MissingKeyFailsFast(t *testing.T) {
	t.Parallel()
	c := New(config.Config{})
	_, err := c.Summarize(context.Background(), testInput())
	le, ok := domain.AsLLMError(err)
	require.True(t, ok)
	assert.Equal(t, domain.LLMFailed, le.Kind)
}

func TestStripFences(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestMock_Deterministic(t *testing.T) {
	t.Parallel()
	m := NewMock()
	in := testInput()
	a, err := m.Summarize(context.Background(), in)
	require.NoError(t, err)
	b, err := m.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.Summary)
	require.NotNil(t, a.UI)
	assert.LessOrEqual(t, len([]rune(a.UI.Summary140)), 140)
}

func TestDeterministicEmbed(t *testing.T) {
	t.Parallel()
	v1 := DeterministicEmbed("some article text", 16)
	v2 := DeterministicEmbed("some article text", 16)
	assert.Equal(t, v1, v2, "same text must embed identically")

	v3 := DeterministicEmbed("different text", 16)
	assert.NotEqual(t, v1, v3)

	// L2 norm of a non-empty embedding is 1.
	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	assert.Equal(t, make([]float32, 8), DeterministicEmbed("", 8))
	assert.Len(t, DeterministicEmbed("x", 7), 7, "odd dims filled")
}
