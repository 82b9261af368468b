package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

func testConfig() config.Config {
	return config.Config{
		FetchTimeoutMS:  2000,
		HeadlessEnabled: false,
	}
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>Hello world.</p></body></html>"))
	}))
	defer srv.Close()

	c := New(testConfig())
	res, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, res.ContentType, "html")
	assert.Contains(t, string(res.Body), "Hello world.")
	assert.Equal(t, srv.URL+"/", res.FinalURL)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	t.Parallel()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, srv.URL+"/new", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>moved</p>"))
	}))
	defer srv.Close()

	c := New(testConfig())
	res, err := c.Fetch(context.Background(), srv.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", res.FinalURL)
}

func TestFetch_StatusClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status    int
		retryable bool
	}{
		{500, true}, {502, true}, {503, true},
		{401, true}, {403, true}, {406, true}, {408, true},
		{409, true}, {412, true}, {429, true}, {451, true},
		{404, false}, {400, false}, {410, false}, {422, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			c := New(testConfig())
			_, err := c.Fetch(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Equal(t, tc.retryable, domain.IsRetryableFetch(err))
		})
	}
}

func TestFetch_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.FetchTimeoutMS = 1000
	c := New(cfg)
	_, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, domain.IsRetryableFetch(err))
}

func TestFetch_ConnectionErrorIsRetryable(t *testing.T) {
	t.Parallel()
	c := New(testConfig())
	// Reserved TEST-NET port that nothing listens on.
	_, err := c.Fetch(context.Background(), "http://127.0.0.1:1")
	require.Error(t, err)
	assert.True(t, domain.IsRetryableFetch(err))
}

func TestFetch_ConfiguredUserAgentWins(t *testing.T) {
	t.Parallel()
	var seen string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>x</p>"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.UserAgent = "custom-agent/1.0"
	c := New(cfg)
	_, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "custom-agent/1.0", seen)
}

func TestFetchHeadless_DisabledReturnsMiss(t *testing.T) {
	t.Parallel()
	c := New(testConfig())
	res, ok := c.FetchHeadless(context.Background(), "https://example.com")
	assert.False(t, ok)
	assert.Nil(t, res)
}

func TestClassifyStatus_SuccessRange(t *testing.T) {
	t.Parallel()
	assert.Nil(t, classifyStatus(200))
	assert.Nil(t, classifyStatus(204))
	assert.Nil(t, classifyStatus(301))
}
