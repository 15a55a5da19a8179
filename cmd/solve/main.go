// solve runs one quiz job in-process and prints the finished job record.
// It uses the same solver wiring as the server but skips the queue and the
// secret check.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"basegraph.app/quizsolver/common/id"
	"basegraph.app/quizsolver/common/logger"
	"basegraph.app/quizsolver/core/config"
	"basegraph.app/quizsolver/internal/bootstrap"
	"basegraph.app/quizsolver/internal/model"
	"basegraph.app/quizsolver/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		quizURL string
		email   string
		secret  string
		timeout time.Duration
	)

	flagSet := pflag.NewFlagSet("solve", pflag.ContinueOnError)
	flagSet.StringVar(&quizURL, "url", "", "quiz page to solve (required)")
	flagSet.StringVar(&email, "email", "", "email sent with every submission")
	flagSet.StringVar(&secret, "secret", "", "secret sent with every submission")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Minute, "abort the run after this long")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if quizURL == "" {
		flagSet.Usage()
		return errors.New("--url is required")
	}

	cfg, err := config.Load(config.ServiceTypeSolve)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if secret == "" {
		secret = cfg.AppSecret
	}

	logger.Setup(cfg)
	if err := id.Init(1); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jobs := store.NewMemoryJobStore()
	orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, jobs)
	if err != nil {
		return err
	}

	jobID := uuid.NewString()
	if _, err := jobs.Create(ctx, jobID, model.Payload{Email: email, Secret: secret, URL: quizURL}); err != nil {
		return fmt.Errorf("creating job: %w", err)
	}

	slog.InfoContext(ctx, "solving quiz", "job_id", jobID, "url", quizURL)
	orchestrator.Run(ctx, jobID)

	job, err := jobs.Get(context.Background(), jobID)
	if err != nil {
		return fmt.Errorf("reading job: %w", err)
	}
	job.Payload = job.Payload.Redacted()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return fmt.Errorf("writing job: %w", err)
	}

	if job.Status != model.JobStatusDone {
		return fmt.Errorf("job %s ended %s", jobID, job.Status)
	}
	return nil
}
