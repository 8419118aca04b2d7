package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/nugget/envoy/internal/llm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLLM returns scripted responses in order and records every call.
type mockLLM struct {
	mu         sync.Mutex
	responses  []*llm.ChatResponse
	structured []*llm.ChatResponse
	chatErr    error
	structErr  error
	callIndex  int
	structIdx  int
	calls      []mockLLMCall
}

type mockLLMCall struct {
	Model      string
	Messages   []llm.Message
	Tools      []map[string]any
	Structured bool
	Format     *llm.ResponseFormat
}

func (m *mockLLM) Chat(_ context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, mockLLMCall{Model: model, Messages: append([]llm.Message(nil), messages...), Tools: tools})
	if m.chatErr != nil {
		return nil, m.chatErr
	}
	if m.callIndex >= len(m.responses) {
		return nil, errors.New("mockLLM: no more responses")
	}
	resp := m.responses[m.callIndex]
	m.callIndex++
	return resp, nil
}

func (m *mockLLM) ChatStructured(_ context.Context, model string, messages []llm.Message, format *llm.ResponseFormat) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, mockLLMCall{Model: model, Messages: append([]llm.Message(nil), messages...), Structured: true, Format: format})
	if m.structErr != nil {
		return nil, m.structErr
	}
	if m.structIdx >= len(m.structured) {
		return nil, errors.New("mockLLM: no more structured responses")
	}
	resp := m.structured[m.structIdx]
	m.structIdx++
	return resp, nil
}

func (m *mockLLM) Ping(context.Context) error { return nil }

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}
}

func toolResponse(content string, calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls}}
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Function: llm.ToolFunction{Name: name, Arguments: args}}
}
