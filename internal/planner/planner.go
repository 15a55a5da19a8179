package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"basegraph.app/quizsolver/common/llm"
	"basegraph.app/quizsolver/common/logger"
)

var (
	ErrNoAnswer    = errors.New("planner output has no answer")
	ErrUnparseable = errors.New("planner output is not JSON")
)

var jsonObjectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// Answer is the planner's structured output. Its shape is whatever the quiz
// asks for; only the "answer" field is guaranteed.
type Answer map[string]any

func (a Answer) Value() any {
	return a["answer"]
}

// Planner turns a prompt into an answer object.
type Planner interface {
	Plan(ctx context.Context, prompt string) (Answer, error)
}

type answerEnvelope struct {
	Answer any `json:"answer" jsonschema:"required,description=Value submitted to the grader"`
}

type Config struct {
	Timeout    time.Duration
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
}

type LLMPlanner struct {
	llm    llm.Client
	schema *jsonschema.Schema
	cfg    Config
}

func New(client llm.Client, cfg Config) (*LLMPlanner, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 40 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	schema, err := compileAnswerSchema()
	if err != nil {
		return nil, err
	}

	return &LLMPlanner{llm: client, schema: schema, cfg: cfg}, nil
}

func (p *LLMPlanner) Plan(ctx context.Context, prompt string) (Answer, error) {
	sc := logger.StartSpan(ctx, "quiz.planner.plan")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		Component: "quizsolver.planner",
	})

	start := time.Now()
	var (
		resp *llm.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = p.chat(ctx, prompt)
		if err == nil || attempt >= p.cfg.MaxRetries || !llm.IsRetryable(ctx, err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("planner call: %w", ctx.Err())
		case <-time.After(p.cfg.RetryDelay * time.Duration(attempt+1)):
		}
	}
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("planner call: %w", err)
	}

	answer, err := p.parse(resp.Content)
	if err != nil {
		sc.RecordError(err)
		slog.WarnContext(ctx, "planner output rejected",
			"error", err,
			"content", logger.Truncate(resp.Content, 500))
		return nil, err
	}

	slog.InfoContext(ctx, "planner answered",
		"model", p.llm.Model(),
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_chars", len(prompt),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	return answer, nil
}

func (p *LLMPlanner) chat(ctx context.Context, prompt string) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	return p.llm.Chat(ctx, llm.Request{
		SystemPrompt: SystemPrompt,
		UserPrompt:   prompt,
		JSONMode:     true,
		MaxTokens:    p.cfg.MaxTokens,
		Temperature:  llm.Temp(0),
	})
}

// parse decodes the reply leniently, wraps non-object values as
// {"answer": value} and checks the answer field is present.
func (p *LLMPlanner) parse(content string) (Answer, error) {
	v, err := decodeLenient(content)
	if err != nil {
		return nil, err
	}

	obj, ok := v.(map[string]any)
	if !ok {
		obj = map[string]any{"answer": v}
	}

	if err := p.schema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAnswer, err)
	}
	return Answer(obj), nil
}

func decodeLenient(content string) (any, error) {
	content = strings.TrimSpace(content)
	if v, err := decodeJSON(content); err == nil {
		return v, nil
	}
	if m := jsonObjectSpan.FindString(content); m != "" {
		if v, err := decodeJSON(m); err == nil {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnparseable, logger.Truncate(content, 200))
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func compileAnswerSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(llm.GenerateSchema[answerEnvelope]())
	if err != nil {
		return nil, fmt.Errorf("marshal answer schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("answer.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add answer schema: %w", err)
	}
	schema, err := compiler.Compile("answer.json")
	if err != nil {
		return nil, fmt.Errorf("compile answer schema: %w", err)
	}
	return schema, nil
}
