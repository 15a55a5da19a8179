package planner_test

import (
	"context"

	"basegraph.app/quizsolver/common/llm"
)

type mockLLMClient struct {
	chatFn    func(ctx context.Context, req llm.Request) (*llm.Response, error)
	callCount int
	requests  []llm.Request
}

func (m *mockLLMClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.callCount++
	m.requests = append(m.requests, req)
	if m.chatFn != nil {
		return m.chatFn(ctx, req)
	}
	return &llm.Response{Content: `{"answer": null}`}, nil
}

func (m *mockLLMClient) Model() string {
	return "mock-model"
}

func reply(content string) func(context.Context, llm.Request) (*llm.Response, error) {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: content}, nil
	}
}
