package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/fairyhunter13/story-enricher/internal/adapter/observability"
	"github.com/fairyhunter13/story-enricher/internal/domain"
)

// blockedResourcePatterns keeps image/media/font traffic off the wire during
// headless loads; only the document and scripts matter for extraction.
var blockedResourcePatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.mp4", "*.webm", "*.mp3", "*.woff", "*.woff2", "*.ttf", "*.otf",
}

// scrollScript nudges lazy-loaded content into the DOM: ~2400px total in
// 600px steps every 250ms.
const scrollScript = `new Promise(res => {
  let total = 0;
  const step = () => {
    window.scrollBy(0, 600);
    total += 600;
    if (total >= 2400) return res(true);
    setTimeout(step, 250);
  };
  step();
})`

// stealthScript is the minimal anti-automation tweak; enough for light walls,
// not meant to be bulletproof.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// FetchHeadless loads the URL in headless Chromium and returns the rendered
// HTML. Any failure yields ok=false rather than an error so the caller keeps
// the retry-vs-DLQ decision.
func (c *Client) FetchHeadless(ctx context.Context, rawURL string) (*domain.FetchResult, bool) {
	if !c.cfg.HeadlessEnabled {
		slog.Info("headless disabled")
		return nil, false
	}

	timeout := c.cfg.HeadlessTimeout()
	t0 := time.Now()
	slog.Info("headless start", slog.String("url", rawURL), slog.Int64("timeout_ms", timeout.Milliseconds()))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(c.userAgent()),
		chromedp.WindowSize(1366, 768),
	)
	if c.cfg.HTTPProxy != "" {
		opts = append(opts, chromedp.ProxyServer(c.cfg.HTTPProxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	var html, finalURL string
	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetBlockedURLs(blockedResourcePatterns),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(scrollScript, nil, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		observability.FetchesTotal.WithLabelValues("headless_miss").Inc()
		slog.Warn("headless error", slog.String("url", rawURL), slog.Any("error", err))
		return nil, false
	}
	if html == "" {
		observability.FetchesTotal.WithLabelValues("headless_miss").Inc()
		slog.Warn("headless empty document", slog.String("url", rawURL))
		return nil, false
	}

	observability.FetchesTotal.WithLabelValues("headless_ok").Inc()
	slog.Info("headless done",
		slog.String("url", rawURL),
		slog.String("final_url", finalURL),
		slog.Int("bytes", len(html)),
		slog.Int64("latency_ms", time.Since(t0).Milliseconds()))
	return &domain.FetchResult{
		FinalURL:    finalURL,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(html),
		Header:      map[string]string{},
	}, true
}
