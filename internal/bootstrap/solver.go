package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"basegraph.app/quizsolver/common/llm"
	"basegraph.app/quizsolver/core/config"
	"basegraph.app/quizsolver/internal/pipeline"
	"basegraph.app/quizsolver/internal/planner"
	"basegraph.app/quizsolver/internal/solver"
	"basegraph.app/quizsolver/internal/store"
)

// NewOrchestrator wires the page pipeline, the planner and the submission
// machine from configuration.
func NewOrchestrator(ctx context.Context, cfg config.Config, jobs store.JobStore) (*solver.Orchestrator, error) {
	if !cfg.PlannerLLM.Enabled() {
		return nil, fmt.Errorf("planner LLM not configured: set PLANNER_LLM_API_KEY (or OPENAI_API_KEY)")
	}

	client, err := llm.New(llm.Config{
		Provider:        cfg.PlannerLLM.Provider,
		APIKey:          cfg.PlannerLLM.APIKey,
		BaseURL:         cfg.PlannerLLM.BaseURL,
		Model:           cfg.PlannerLLM.Model,
		ReasoningEffort: llm.ReasoningEffort(cfg.PlannerLLM.ReasoningEffort),
	})
	if err != nil {
		return nil, fmt.Errorf("creating planner llm client: %w", err)
	}

	answerPlanner, err := planner.New(client, planner.Config{
		Timeout:    cfg.PlannerLLM.Timeout,
		MaxTokens:  cfg.PlannerLLM.MaxTokens,
		MaxRetries: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("creating planner: %w", err)
	}

	httpClient := &http.Client{}
	pages := pipeline.New(
		NewRenderer(cfg.Renderer, httpClient),
		pipeline.NewHTMLParser(),
		pipeline.NewHTTPFetcher(httpClient, cfg.Fetcher.TmpDir, cfg.Fetcher.Timeout, cfg.Fetcher.MaxFileSize),
		pipeline.NewFileExtractor(),
	)

	prompts := planner.NewPromptBuilder(cfg.Submission.PromptResourceChars)
	machine := solver.NewSubmissionMachine(
		solver.NewHTTPGrader(httpClient, cfg.Submission.Timeout),
		pages,
		answerPlanner,
		prompts,
		solver.SubmissionConfig{
			MaxAttempts:           cfg.Submission.MaxAttempts,
			MaxDuration:           cfg.Submission.MaxDuration,
			MaxBodyBytes:          cfg.Submission.MaxBodyBytes,
			MaxRefinementsPerPage: cfg.Submission.MaxRefinementsPerPage,
		},
	)

	slog.InfoContext(ctx, "solver initialized",
		"llm_provider", cfg.PlannerLLM.Provider,
		"llm_model", client.Model(),
		"renderer", cfg.Renderer.Mode,
		"max_attempts", cfg.Submission.MaxAttempts,
		"max_duration", cfg.Submission.MaxDuration)

	return solver.NewOrchestrator(jobs, pages, answerPlanner, prompts, machine), nil
}

func NewRenderer(cfg config.RendererConfig, client *http.Client) pipeline.Renderer {
	if cfg.Mode == config.RendererModeHTTP {
		return pipeline.NewHTTPRenderer(client, cfg.Timeout)
	}
	return pipeline.NewChromeRenderer(cfg.Timeout, cfg.ChromePath)
}
