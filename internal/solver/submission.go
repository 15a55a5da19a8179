package solver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/pipeline"
	"basegraph.app/quizsolver/internal/planner"
)

const (
	DefaultMaxAttempts  = 10
	DefaultMaxDuration  = 180 * time.Second
	DefaultMaxBodyBytes = 1_000_000
)

// PageLoader runs the render, parse, fetch and extract steps for one URL.
type PageLoader interface {
	Load(ctx context.Context, jobID, url string) (*pipeline.Page, error)
}

type SubmissionConfig struct {
	MaxAttempts  int
	MaxDuration  time.Duration
	MaxBodyBytes int
	// MaxRefinementsPerPage caps refinements against one submit URL.
	// Zero leaves refinement bounded only by attempts and duration.
	MaxRefinementsPerPage int
}

func (c SubmissionConfig) withDefaults() SubmissionConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

// CycleStart is the state handed over by the orchestrator after the first
// page has been loaded and planned.
type CycleStart struct {
	JobID   string
	Payload model.Payload
	Page    *pipeline.Page
	Answer  planner.Answer
}

// Outcome is how a submission cycle ended. LastResponse is the final grader
// reply, or a diagnostic string when the cycle ended without one.
type Outcome struct {
	Reason       model.StopReason
	LastResponse any
	Answer       planner.Answer
	Attempts     int
	SourceURL    string
	Page         *pipeline.Page
}

type cycle struct {
	sourceURL   string
	submitURL   string
	answer      planner.Answer
	page        *pipeline.Page
	attempts    int
	refinements int
	startedAt   time.Time
}

func (c *cycle) stop(reason model.StopReason, lastResponse any) *Outcome {
	return &Outcome{
		Reason:       reason,
		LastResponse: lastResponse,
		Answer:       c.answer,
		Attempts:     c.attempts,
		SourceURL:    c.sourceURL,
		Page:         c.page,
	}
}

type SubmissionMachine struct {
	grader  Grader
	loader  PageLoader
	planner planner.Planner
	prompts planner.PromptBuilder
	cfg     SubmissionConfig
	now     func() time.Time
}

type MachineOption func(*SubmissionMachine)

// WithNow replaces the clock used for the duration bound.
func WithNow(now func() time.Time) MachineOption {
	return func(m *SubmissionMachine) {
		m.now = now
	}
}

func NewSubmissionMachine(
	grader Grader,
	loader PageLoader,
	answerPlanner planner.Planner,
	prompts planner.PromptBuilder,
	cfg SubmissionConfig,
	opts ...MachineOption,
) *SubmissionMachine {
	m := &SubmissionMachine{
		grader:  grader,
		loader:  loader,
		planner: answerPlanner,
		prompts: prompts,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run submits answers until the grader accepts the last page or a bound is
// hit. Attempts and the start time carry across chained pages. The only
// error returned is a failure to load a chained page; every other exit is
// an Outcome.
func (m *SubmissionMachine) Run(ctx context.Context, start CycleStart) (*Outcome, error) {
	c := &cycle{
		sourceURL: start.Page.URL,
		submitURL: start.Page.Parsed.SubmitURL,
		answer:    start.Answer,
		page:      start.Page,
	}

	for {
		if c.submitURL == "" {
			return c.stop(model.StopReasonNoTarget, "no submit_url provided; no submission attempted"), nil
		}

		now := m.now()
		if c.startedAt.IsZero() {
			c.startedAt = now
		}
		if now.Sub(c.startedAt) > m.cfg.MaxDuration {
			return c.stop(model.StopReasonDurationExceeded,
				fmt.Sprintf("stopped: exceeded %d seconds window", int(m.cfg.MaxDuration.Seconds()))), nil
		}
		if c.attempts >= m.cfg.MaxAttempts {
			return c.stop(model.StopReasonAttemptsExhausted,
				fmt.Sprintf("stopped: reached %d attempts", m.cfg.MaxAttempts)), nil
		}

		body, err := json.Marshal(model.Submission{
			Email:  start.Payload.Email,
			Secret: start.Payload.Secret,
			URL:    c.sourceURL,
			Answer: c.answer.Value(),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding submission: %w", err)
		}
		if len(body) >= m.cfg.MaxBodyBytes {
			slog.WarnContext(ctx, "submission body over limit", "body_bytes", len(body))
			return c.stop(model.StopReasonPayloadTooLarge, "submission payload too large (>1MB)"), nil
		}

		c.attempts++
		reply, err := m.submit(ctx, c, body)
		if err != nil {
			return c.stop(model.StopReasonTransportError, fmt.Sprintf("submission error: %v", err)), nil
		}
		if reply.Object == nil {
			return c.stop(model.StopReasonMalformedResponse, reply.Raw), nil
		}

		correct, ok := reply.Verdict()
		switch {
		case !ok:
			return c.stop(model.StopReasonVerdictUnclear, reply.Object), nil

		case correct && reply.NextURL() == "":
			return c.stop(model.StopReasonAccepted, reply.Object), nil

		case correct:
			if stop, err := m.chain(ctx, start.JobID, c, reply.NextURL()); err != nil || stop != nil {
				return stop, err
			}

		default:
			if stop := m.refine(ctx, c, reply); stop != nil {
				return stop, nil
			}
		}
	}
}

func (m *SubmissionMachine) submit(ctx context.Context, c *cycle, body []byte) (*GraderReply, error) {
	sc := logger.StartSpan(ctx, "quiz.submission.attempt")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		SourceURL: logger.Ptr(c.sourceURL),
		Attempt:   logger.Ptr(c.attempts),
		Component: "quizsolver.solver.submission",
	})
	sc.SetAttributes(
		attribute.Int("quiz.attempt", c.attempts),
		attribute.String("quiz.submit_url", c.submitURL),
	)

	start := m.now()
	reply, err := m.grader.Submit(ctx, c.submitURL, body)
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "submission failed", "submit_url", c.submitURL, "error", err)
		return nil, err
	}

	correct, ok := reply.Verdict()
	slog.InfoContext(ctx, "submission graded",
		"submit_url", c.submitURL,
		"status_code", reply.StatusCode,
		"correct", correct,
		"verdict_present", ok,
		"duration_ms", m.now().Sub(start).Milliseconds())

	return reply, nil
}

// chain moves the cycle onto the follow-up page. A nil Outcome with a nil
// error means the loop continues.
func (m *SubmissionMachine) chain(ctx context.Context, jobID string, c *cycle, nextURL string) (*Outcome, error) {
	slog.InfoContext(ctx, "answer accepted, following chain",
		"from_url", c.sourceURL,
		"next_url", nextURL,
		"attempts", c.attempts)

	c.sourceURL = nextURL
	page, err := m.loader.Load(ctx, jobID, nextURL)
	if err != nil {
		return nil, fmt.Errorf("loading chained page %s: %w", nextURL, err)
	}
	c.page = page

	prompt := m.prompts.FollowUp(nextURL, page.Parsed.QuestionText, page.ExtractedTexts)
	answer, err := m.planner.Plan(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "follow-up planning failed", "error", err)
		return c.stop(model.StopReasonChainPlanFailed, fmt.Sprintf("LLM failed on follow-up: %v", err)), nil
	}

	c.answer = answer
	c.submitURL = page.Parsed.SubmitURL
	c.refinements = 0
	return nil, nil
}

// refine asks for a corrected answer against the same submit URL.
func (m *SubmissionMachine) refine(ctx context.Context, c *cycle, reply *GraderReply) *Outcome {
	if m.cfg.MaxRefinementsPerPage > 0 && c.refinements >= m.cfg.MaxRefinementsPerPage {
		return c.stop(model.StopReasonRefinementLimit, reply.Object)
	}
	c.refinements++

	reason := reply.Reason()
	slog.InfoContext(ctx, "answer rejected, refining",
		"reason", logger.Truncate(fmt.Sprint(reason), 200),
		"attempts", c.attempts)

	prompt := m.prompts.Refinement(reason, c.page.Parsed.QuestionText, c.page.ExtractedTexts)
	answer, err := m.planner.Plan(ctx, prompt)
	if err != nil {
		slog.WarnContext(ctx, "refinement planning failed", "error", err)
		return c.stop(model.StopReasonRefinementFailed, fmt.Sprintf("LLM failed during refinement: %v", err))
	}

	c.answer = answer
	return nil
}
