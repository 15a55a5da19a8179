package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"basegraph.app/quizsolver/common/id"
	"basegraph.app/quizsolver/internal/model"
)

// Fetcher downloads the files a page references. Per-resource failures are
// logged and the resource is left out of the returned map.
type Fetcher interface {
	Fetch(ctx context.Context, jobID string, page model.ParsedPage, baseURL string) map[string]model.ResourceHandle
	Cleanup(jobID string) error
}

var downloadKinds = map[string]model.ResourceKind{
	".pdf":  model.ResourceKindPDF,
	".csv":  model.ResourceKindCSV,
	".json": model.ResourceKindJSON,
	".txt":  model.ResourceKindText,
	".xlsx": model.ResourceKindXLSX,
}

type HTTPFetcher struct {
	client  *http.Client
	tmpDir  string
	timeout time.Duration
	maxSize int64
}

func NewHTTPFetcher(client *http.Client, tmpDir string, timeout time.Duration, maxSize int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:  client,
		tmpDir:  tmpDir,
		timeout: timeout,
		maxSize: maxSize,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, jobID string, page model.ParsedPage, baseURL string) map[string]model.ResourceHandle {
	results := make(map[string]model.ResourceHandle)

	for i, r := range page.Resources {
		switch r.Source {
		case model.DescriptorSourceURL:
			href := resolveURL(baseURL, r.URL)
			kind, ok := kindFromURL(href)
			if href == "" || !ok {
				continue
			}
			name := fmt.Sprintf("res_%d", i)
			path, err := f.download(ctx, jobID, name, href, kind)
			if err != nil {
				slog.WarnContext(ctx, "resource download failed", "resource", name, "url", href, "error", err)
				continue
			}
			results[name] = model.ResourceHandle{Kind: kind, Path: path, URL: href}

		case model.DescriptorSourceEmbeddedBase64:
			name := fmt.Sprintf("embedded_%d", i)
			handle, err := f.decodeEmbedded(jobID, name, r.Content)
			if err != nil {
				slog.DebugContext(ctx, "embedded payload skipped", "resource", name, "error", err)
				continue
			}
			results[name] = handle

		case model.DescriptorSourceEmbedded:
			name := fmt.Sprintf("res_emb_%d", i)
			for _, token := range strings.Fields(r.Content) {
				href := strings.Trim(strings.TrimSpace(token), `",'`)
				kind, ok := kindFromURL(href)
				if !ok {
					continue
				}
				href = resolveURL(baseURL, href)
				path, err := f.download(ctx, jobID, name, href, kind)
				if err != nil {
					slog.WarnContext(ctx, "embedded link download failed", "resource", name, "url", href, "error", err)
					continue
				}
				results[name] = model.ResourceHandle{Kind: kind, Path: path, URL: href}
				break
			}
		}
	}

	slog.InfoContext(ctx, "resources fetched",
		"descriptors", len(page.Resources),
		"fetched", len(results))

	return results
}

// Cleanup removes everything downloaded for a job.
func (f *HTTPFetcher) Cleanup(jobID string) error {
	if err := os.RemoveAll(f.jobDir(jobID)); err != nil {
		return fmt.Errorf("removing resources for job %s: %w", jobID, err)
	}
	return nil
}

func (f *HTTPFetcher) download(ctx context.Context, jobID, name, href string, kind model.ResourceKind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return "", fmt.Errorf("file larger than %d bytes", f.maxSize)
	}

	return f.write(jobID, name, kind, data)
}

func (f *HTTPFetcher) decodeEmbedded(jobID, name, payload string) (model.ResourceHandle, error) {
	data, err := decodeBase64(payload)
	if err != nil {
		return model.ResourceHandle{}, err
	}

	kind := sniffKind(data)
	if kind == model.ResourceKindBinary {
		return model.ResourceHandle{}, fmt.Errorf("unrecognised embedded payload")
	}

	path, err := f.write(jobID, name, kind, data)
	if err != nil {
		return model.ResourceHandle{}, err
	}
	return model.ResourceHandle{Kind: kind, Path: path}, nil
}

func (f *HTTPFetcher) write(jobID, name string, kind model.ResourceKind, data []byte) (string, error) {
	dir := f.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating job dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, id.NewString(), extensionFor(kind)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func (f *HTTPFetcher) jobDir(jobID string) string {
	return filepath.Join(f.tmpDir, filepath.Base(jobID))
}

func kindFromURL(href string) (model.ResourceKind, bool) {
	lower := strings.ToLower(href)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	kind, ok := downloadKinds[filepath.Ext(lower)]
	return kind, ok
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("payload is not base64")
}

func sniffKind(data []byte) model.ResourceKind {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return model.ResourceKindPDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return model.ResourceKindXLSX
	case len(data) > 0 && utf8.Valid(data):
		return model.ResourceKindText
	default:
		return model.ResourceKindBinary
	}
}

func extensionFor(kind model.ResourceKind) string {
	switch kind {
	case model.ResourceKindText:
		return "txt"
	case model.ResourceKindBinary, model.ResourceKindUnknown, model.ResourceKindError:
		return "bin"
	default:
		return string(kind)
	}
}
