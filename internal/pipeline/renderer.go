package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer returns the fully rendered markup of a page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

const maxPageBytes = 10 << 20

// ChromeRenderer drives a headless Chrome so client-side rendered quizzes
// end up in the DOM before the markup is read.
type ChromeRenderer struct {
	timeout  time.Duration
	settle   time.Duration
	execPath string
}

func NewChromeRenderer(timeout time.Duration, execPath string) *ChromeRenderer {
	return &ChromeRenderer{
		timeout:  timeout,
		settle:   500 * time.Millisecond,
		execPath: execPath,
	}
}

func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.DisableGPU,
	)
	if r.execPath != "" {
		opts = append(opts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout)
	defer cancelTimeout()

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// scripts usually finish injecting the question right after load
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", url, err)
	}

	slog.DebugContext(ctx, "page rendered",
		"renderer", "chrome",
		"url", url,
		"bytes", len(html),
		"duration_ms", time.Since(start).Milliseconds())

	return html, nil
}

// HTTPRenderer fetches raw markup without executing scripts. Pages that
// build their content with atob() still expose the payload to the parser.
type HTTPRenderer struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPRenderer(client *http.Client, timeout time.Duration) *HTTPRenderer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRenderer{client: client, timeout: timeout}
}

func (r *HTTPRenderer) Render(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("rendering %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	slog.DebugContext(ctx, "page rendered",
		"renderer", "http",
		"url", url,
		"bytes", len(body),
		"status", resp.StatusCode)

	return string(body), nil
}
