package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/internal/model"
)

const (
	htmlPreviewChars  = 500
	extractionWorkers = 4
)

// Page is everything learned about one quiz page.
type Page struct {
	URL            string
	HTML           string
	Parsed         model.ParsedPage
	Resources      map[string]model.ResourceHandle
	ExtractedTexts map[string]model.ExtractedText
}

// Preview returns the first characters of the rendered markup.
func (p *Page) Preview() string {
	if p == nil {
		return ""
	}
	return truncateRunes(p.HTML, htmlPreviewChars)
}

type Pipeline struct {
	renderer  Renderer
	parser    Parser
	fetcher   Fetcher
	extractor Extractor
}

func New(renderer Renderer, parser Parser, fetcher Fetcher, extractor Extractor) *Pipeline {
	return &Pipeline{
		renderer:  renderer,
		parser:    parser,
		fetcher:   fetcher,
		extractor: extractor,
	}
}

// Load runs render -> parse -> fetch -> extract for one URL. Render failures
// are returned; extraction failures are recorded per resource.
func (p *Pipeline) Load(ctx context.Context, jobID, url string) (*Page, error) {
	sc := logger.StartSpan(ctx, "quiz.pipeline.load")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		SourceURL: logger.Ptr(url),
		Component: "quizsolver.pipeline",
	})
	sc.SetAttributes(attribute.String("quiz.url", url))

	start := time.Now()

	markup, err := p.renderer.Render(ctx, url)
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("render: %w", err)
	}

	parsed := p.parser.Parse(markup, url)
	resources := p.fetcher.Fetch(ctx, jobID, parsed, url)
	extracted := p.extractAll(ctx, resources)

	slog.InfoContext(ctx, "page loaded",
		"question_chars", len(parsed.QuestionText),
		"submit_url", parsed.SubmitURL,
		"descriptors", len(parsed.Resources),
		"resources", len(resources),
		"duration_ms", time.Since(start).Milliseconds())

	return &Page{
		URL:            url,
		HTML:           markup,
		Parsed:         parsed,
		Resources:      resources,
		ExtractedTexts: extracted,
	}, nil
}

// Cleanup drops the files downloaded for a job.
func (p *Pipeline) Cleanup(jobID string) error {
	return p.fetcher.Cleanup(jobID)
}

// extractAll extracts resources concurrently. Each goroutine owns one slot,
// and the map is assembled only after every extraction has returned.
func (p *Pipeline) extractAll(ctx context.Context, resources map[string]model.ResourceHandle) map[string]model.ExtractedText {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)

	slots := make([]model.ExtractedText, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractionWorkers)
	for i, name := range names {
		g.Go(func() error {
			slots[i] = p.extractOne(gctx, name, resources[name])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]model.ExtractedText, len(names))
	for i, name := range names {
		out[name] = slots[i]
	}
	return out
}

func (p *Pipeline) extractOne(ctx context.Context, name string, h model.ResourceHandle) (out model.ExtractedText) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in extraction", "resource", name, "panic", r)
			out = model.ExtractedText{Kind: model.ResourceKindError, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	text, err := p.extractor.Extract(ctx, h)
	if err != nil {
		slog.WarnContext(ctx, "resource extraction failed", "resource", name, "kind", h.Kind, "error", err)
		return model.ExtractedText{Kind: model.ResourceKindError, Error: err.Error()}
	}
	return text
}
