package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/pipeline"
	"basegraph.app/quizsolver/internal/planner"
	"basegraph.app/quizsolver/internal/store"
)

// PagePipeline loads quiz pages and owns the files downloaded for a job.
type PagePipeline interface {
	PageLoader
	Cleanup(jobID string) error
}

type Orchestrator struct {
	jobs    store.JobStore
	pages   PagePipeline
	planner planner.Planner
	prompts planner.PromptBuilder
	machine *SubmissionMachine
	now     func() time.Time
}

func NewOrchestrator(
	jobs store.JobStore,
	pages PagePipeline,
	answerPlanner planner.Planner,
	prompts planner.PromptBuilder,
	machine *SubmissionMachine,
) *Orchestrator {
	return &Orchestrator{
		jobs:    jobs,
		pages:   pages,
		planner: answerPlanner,
		prompts: prompts,
		machine: machine,
		now:     time.Now,
	}
}

// Run solves one job to a terminal state. It never returns an error: every
// failure ends up in the job's result. Jobs that are unknown or no longer
// queued are left alone.
func (o *Orchestrator) Run(ctx context.Context, id string) {
	sc := logger.StartSpan(ctx, "quiz.job.run")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		JobID:     logger.Ptr(id),
		Component: "quizsolver.solver.orchestrator",
	})

	if _, err := o.jobs.Get(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "job not found, skipping")
			return
		}
		slog.ErrorContext(ctx, "loading job failed", "error", err)
		return
	}

	claimed, job, err := o.jobs.ClaimQueued(ctx, id)
	if err != nil {
		slog.ErrorContext(ctx, "claiming job failed", "error", err)
		return
	}
	if !claimed {
		slog.InfoContext(ctx, "job already claimed, skipping")
		return
	}

	defer func() {
		if err := o.pages.Cleanup(id); err != nil {
			slog.WarnContext(ctx, "resource cleanup failed", "error", err)
		}
	}()

	start := o.now()
	slog.InfoContext(ctx, "job started", "url", job.Payload.URL)

	status := model.JobStatusDone
	result, err := o.solve(ctx, job)
	if err != nil {
		sc.RecordError(err)
		status = model.JobStatusFailed
		result = model.Result{Success: false, Error: err.Error()}
	}
	result.FinishedAt = o.now()

	if err := o.jobs.Finish(ctx, id, status, result); err != nil {
		slog.ErrorContext(ctx, "writing job result failed", "error", err)
		return
	}

	slog.InfoContext(ctx, "job finished",
		"status", status,
		"stop_reason", result.StopReason,
		"attempts", result.Attempts,
		"duration_ms", o.now().Sub(start).Milliseconds())
}

func (o *Orchestrator) solve(ctx context.Context, job *model.Job) (result model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in job run",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	page, err := o.pages.Load(ctx, job.ID, job.Payload.URL)
	if err != nil {
		return model.Result{}, fmt.Errorf("loading quiz page: %w", err)
	}

	prompt := o.prompts.Initial(page.Parsed.QuestionText, page.ExtractedTexts)
	answer, err := o.planner.Plan(ctx, prompt)
	if err != nil {
		return model.Result{}, fmt.Errorf("planning answer: %w", err)
	}

	outcome, err := o.machine.Run(ctx, CycleStart{
		JobID:   job.ID,
		Payload: job.Payload,
		Page:    page,
		Answer:  answer,
	})
	if err != nil {
		return model.Result{}, fmt.Errorf("submission cycle: %w", err)
	}

	return resultFrom(outcome), nil
}

func resultFrom(out *Outcome) model.Result {
	parsed := out.Page.Parsed
	return model.Result{
		Success:            true,
		Parsed:             &parsed,
		Resources:          out.Page.Resources,
		ExtractedTexts:     out.Page.ExtractedTexts,
		Answer:             map[string]any(out.Answer),
		SubmissionResponse: out.LastResponse,
		StopReason:         out.Reason,
		Attempts:           out.Attempts,
		HTMLPreview:        out.Page.Preview(),
	}
}

var _ PagePipeline = (*pipeline.Pipeline)(nil)
