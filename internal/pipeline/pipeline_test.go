package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/pipeline"
)

var _ = Describe("Pipeline", func() {
	var (
		renderer  *mockRenderer
		parser    *mockParser
		fetcher   *mockFetcher
		extractor *mockExtractor
		p         *pipeline.Pipeline
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		renderer = &mockRenderer{renderFn: func(_ context.Context, url string) (string, error) {
			return "<html>" + url + "</html>", nil
		}}
		parser = &mockParser{parseFn: func(_, _ string) model.ParsedPage {
			return model.ParsedPage{QuestionText: "sum it", SubmitURL: "https://grader/submit"}
		}}
		fetcher = &mockFetcher{fetchFn: func(context.Context, string, model.ParsedPage, string) map[string]model.ResourceHandle {
			return map[string]model.ResourceHandle{
				"res_0": {Kind: model.ResourceKindCSV, Path: "/tmp/a.csv"},
				"res_1": {Kind: model.ResourceKindPDF, Path: "/tmp/b.pdf"},
				"res_2": {Kind: model.ResourceKindText, Path: "/tmp/c.txt"},
			}
		}}
		extractor = &mockExtractor{extractFn: func(_ context.Context, h model.ResourceHandle) (model.ExtractedText, error) {
			if h.Kind == model.ResourceKindPDF {
				return model.ExtractedText{}, errors.New("broken xref table")
			}
			return model.ExtractedText{Kind: h.Kind, Text: "content of " + h.Path}, nil
		}}
		p = pipeline.New(renderer, parser, fetcher, extractor)
	})

	It("records a failed extraction as an error entry and keeps the rest", func() {
		page, err := p.Load(ctx, "job-1", "https://quiz/1")
		Expect(err).NotTo(HaveOccurred())

		Expect(page.ExtractedTexts).To(HaveLen(3))
		Expect(page.ExtractedTexts["res_1"]).To(Equal(model.ExtractedText{
			Kind:  model.ResourceKindError,
			Error: "broken xref table",
		}))
		Expect(page.ExtractedTexts["res_0"].Text).To(Equal("content of /tmp/a.csv"))
		Expect(page.ExtractedTexts["res_2"].Text).To(Equal("content of /tmp/c.txt"))
		Expect(page.Parsed.SubmitURL).To(Equal("https://grader/submit"))
		Expect(page.URL).To(Equal("https://quiz/1"))
	})

	It("turns an extractor panic into an error entry", func() {
		extractor.extractFn = func(_ context.Context, h model.ResourceHandle) (model.ExtractedText, error) {
			if h.Kind == model.ResourceKindText {
				panic("nil map")
			}
			return model.ExtractedText{Kind: h.Kind, Text: "ok"}, nil
		}

		page, err := p.Load(ctx, "job-1", "https://quiz/1")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.ExtractedTexts["res_2"].Kind).To(Equal(model.ResourceKindError))
		Expect(page.ExtractedTexts["res_2"].Error).To(ContainSubstring("nil map"))
	})

	It("passes the job id and page URL to the fetcher", func() {
		var gotJob, gotBase string
		fetcher.fetchFn = func(_ context.Context, jobID string, _ model.ParsedPage, baseURL string) map[string]model.ResourceHandle {
			gotJob, gotBase = jobID, baseURL
			return nil
		}

		_, err := p.Load(ctx, "job-7", "https://quiz/7")
		Expect(err).NotTo(HaveOccurred())
		Expect(gotJob).To(Equal("job-7"))
		Expect(gotBase).To(Equal("https://quiz/7"))
	})

	It("fails when rendering fails and skips the later steps", func() {
		var fetched atomic.Bool
		renderer.renderFn = func(context.Context, string) (string, error) {
			return "", errors.New("navigation timeout")
		}
		fetcher.fetchFn = func(context.Context, string, model.ParsedPage, string) map[string]model.ResourceHandle {
			fetched.Store(true)
			return nil
		}

		page, err := p.Load(ctx, "job-1", "https://quiz/1")
		Expect(err).To(MatchError(ContainSubstring("navigation timeout")))
		Expect(page).To(BeNil())
		Expect(fetched.Load()).To(BeFalse())
	})

	It("previews the first 500 characters of the markup", func() {
		renderer.renderFn = func(context.Context, string) (string, error) {
			return strings.Repeat("a", 700), nil
		}
		page, err := p.Load(ctx, "job-1", "https://quiz/1")
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Preview()).To(HaveLen(500))
	})
})
