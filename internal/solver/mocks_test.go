package solver_test

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/pipeline"
	"basegraph.app/quizsolver/internal/planner"
	"basegraph.app/quizsolver/internal/solver"
)

type submitCall struct {
	URL  string
	Body model.Submission
}

type mockGrader struct {
	submitFn func(ctx context.Context, url string, body []byte) (*solver.GraderReply, error)
	calls    []submitCall
}

func (m *mockGrader) Submit(ctx context.Context, url string, body []byte) (*solver.GraderReply, error) {
	var sub model.Submission
	_ = json.Unmarshal(body, &sub)
	m.calls = append(m.calls, submitCall{URL: url, Body: sub})
	if m.submitFn != nil {
		return m.submitFn(ctx, url, body)
	}
	return jsonReply(`{"correct": true}`), nil
}

func jsonReply(raw string) *solver.GraderReply {
	reply := &solver.GraderReply{StatusCode: 200, Raw: raw}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		reply.Object = obj
	}
	return reply
}

// replies returns canned replies in order, repeating the last one.
func replies(raws ...string) func(context.Context, string, []byte) (*solver.GraderReply, error) {
	i := 0
	return func(context.Context, string, []byte) (*solver.GraderReply, error) {
		raw := raws[min(i, len(raws)-1)]
		i++
		return jsonReply(raw), nil
	}
}

type mockPages struct {
	loadFn    func(ctx context.Context, jobID, url string) (*pipeline.Page, error)
	cleanupFn func(jobID string) error

	mu       sync.Mutex
	loaded   []string
	cleanups []string
}

func (m *mockPages) Load(ctx context.Context, jobID, url string) (*pipeline.Page, error) {
	m.mu.Lock()
	m.loaded = append(m.loaded, url)
	m.mu.Unlock()
	if m.loadFn != nil {
		return m.loadFn(ctx, jobID, url)
	}
	return quizPage(url, ""), nil
}

func (m *mockPages) Cleanup(jobID string) error {
	m.mu.Lock()
	m.cleanups = append(m.cleanups, jobID)
	m.mu.Unlock()
	if m.cleanupFn != nil {
		return m.cleanupFn(jobID)
	}
	return nil
}

type mockPlanner struct {
	planFn  func(ctx context.Context, prompt string) (planner.Answer, error)
	prompts []string
}

func (m *mockPlanner) Plan(ctx context.Context, prompt string) (planner.Answer, error) {
	m.prompts = append(m.prompts, prompt)
	if m.planFn != nil {
		return m.planFn(ctx, prompt)
	}
	return planner.Answer{"answer": "default"}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quizPage(url, submitURL string) *pipeline.Page {
	return &pipeline.Page{
		URL:  url,
		HTML: "<html><body>question at " + url + "</body></html>",
		Parsed: model.ParsedPage{
			QuestionText: "question at " + url,
			SubmitURL:    submitURL,
			Resources:    []model.ResourceDescriptor{},
		},
		Resources: map[string]model.ResourceHandle{
			"res_0": {Kind: model.ResourceKindCSV, Path: "/tmp/x.csv", URL: url + "/data.csv"},
		},
		ExtractedTexts: map[string]model.ExtractedText{
			"res_0": {Kind: model.ResourceKindCSV, Text: "a,b\n1,2"},
		},
	}
}
