// Package fetch retrieves article URLs, first over plain HTTP with a
// browser-like profile and, when enabled, through a headless Chromium
// fallback for rendering-dependent pages and light bot walls.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/config"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// uaPool is a small, realistic User-Agent rotation used when no UA is
// configured.
var uaPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

// retryableStatus is the closed status set treated as transient: rate limits
// and CDN/edge blocks that may pass with backoff or headless rendering.
var retryableStatus = map[int]struct{}{
	401: {}, 403: {}, 406: {}, 408: {}, 409: {}, 412: {}, 429: {}, 451: {},
}

const maxBodyBytes = 16 << 20

// Client implements domain.Fetcher.
type Client struct {
	cfg config.Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a fetcher from configuration.
func New(cfg config.Config) *Client {
	return &Client{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (c *Client) userAgent() string {
	if c.cfg.UserAgent != "" {
		return c.cfg.UserAgent
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return uaPool[c.rng.Intn(len(uaPool))]
}

// httpClient builds a per-call client so the connection surface is torn down
// with the call.
func (c *Client) httpClient() *http.Client {
	tr := &http.Transport{
		ForceAttemptHTTP2: true,
		Proxy:             http.ProxyFromEnvironment,
	}
	if c.cfg.HTTPProxy != "" {
		if pu, err := url.Parse(c.cfg.HTTPProxy); err == nil {
			tr.Proxy = http.ProxyURL(pu)
		}
	}
	return &http.Client{
		Timeout:   c.cfg.FetchTimeout(),
		Transport: tr,
	}
}

// Fetch performs the direct HTTP path: redirects followed, realistic browser
// headers, HTTP/2. Failures are classified into retryable and non-retryable
// fetch errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*domain.FetchResult, error) {
	hc := c.httpClient()
	defer hc.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NonRetryableFetch("bad_url: " + err.Error())
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Accept-Encoding stays unset so the transport negotiates gzip and
	// decompresses transparently.
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")

	t0 := time.Now()
	slog.Info("fetch start", slog.String("url", rawURL))
	resp, err := hc.Do(req)
	if err != nil {
		observability.FetchesTotal.WithLabelValues("retryable").Inc()
		if isTimeout(err) {
			slog.Warn("fetch timeout", slog.String("url", rawURL))
			return nil, domain.RetryableFetch("timeout")
		}
		// DNS, TLS, connection reset and friends.
		slog.Warn("fetch request error", slog.String("url", rawURL), slog.Any("error", err))
		return nil, domain.RetryableFetch("request_error: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if ferr := classifyStatus(resp.StatusCode); ferr != nil {
		if ferr.Retryable {
			observability.FetchesTotal.WithLabelValues("retryable").Inc()
		} else {
			observability.FetchesTotal.WithLabelValues("nonretryable").Inc()
		}
		return nil, ferr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		observability.FetchesTotal.WithLabelValues("retryable").Inc()
		return nil, domain.RetryableFetch("body_read: " + err.Error())
	}

	ctype := resp.Header.Get("Content-Type")
	if ctype == "" && len(body) > 0 {
		ctype = mimetype.Detect(body).String()
	}

	res := &domain.FetchResult{
		FinalURL:    resp.Request.URL.String(),
		ContentType: ctype,
		Body:        body,
		Header:      flattenHeader(resp.Header),
	}
	observability.FetchesTotal.WithLabelValues("ok").Inc()
	slog.Info("fetch done",
		slog.String("url", rawURL),
		slog.String("final_url", res.FinalURL),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Int64("latency_ms", time.Since(t0).Milliseconds()),
		slog.String("content_type", ctype))
	return res, nil
}

// classifyStatus maps a status code to a fetch error, or nil for success.
func classifyStatus(status int) *domain.FetchError {
	switch {
	case status >= 500:
		return domain.RetryableFetch(fmt.Sprintf("status:%d", status))
	case status >= 400:
		if _, ok := retryableStatus[status]; ok {
			return domain.RetryableFetch(fmt.Sprintf("status:%d", status))
		}
		return domain.NonRetryableFetch(fmt.Sprintf("status:%d", status))
	default:
		return nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

var _ domain.Fetcher = (*Client)(nil)
