package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/prompts"
	"github.com/nugget/envoy/internal/tools"
)

// handlerRegistry builds a registry whose record_unknown_question
// handler counts invocations.
func handlerRegistry(t *testing.T, invoked *int) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry(quietLogger())
	err := reg.Register(&tools.Tool{
		ID:          tools.RecordUnknownQuestion,
		Description: "record",
		Parameters:  map[string]tools.Param{"question": {Type: "string", Description: "q"}},
		Required:    []string{"question"},
		Handler: func(context.Context, map[string]any) (any, error) {
			*invoked++
			return map[string]bool{"recorded": true}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func TestGenerate_PlainReply(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("Hello!")}}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m1", 8, quietLogger())

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "earlier"},
		{Role: llm.RoleAssistant, Content: "earlier reply"},
	}
	got, err := loop.Generate(context.Background(), "SYSTEM", history, "Hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Hello!" {
		t.Errorf("reply = %q", got)
	}

	if len(mock.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(mock.calls))
	}
	c := mock.calls[0]
	if c.Model != "m1" {
		t.Errorf("model = %q", c.Model)
	}
	if len(c.Tools) != 1 {
		t.Errorf("tools declared = %d, want 1", len(c.Tools))
	}
	roles := []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(c.Messages) != len(roles) {
		t.Fatalf("messages = %d, want %d", len(c.Messages), len(roles))
	}
	for i, r := range roles {
		if c.Messages[i].Role != r {
			t.Errorf("messages[%d].Role = %q, want %q", i, c.Messages[i].Role, r)
		}
	}
	if c.Messages[0].Content != "SYSTEM" || c.Messages[3].Content != "Hi" {
		t.Errorf("unexpected framing: %+v", c.Messages)
	}
	if len(history) != 2 {
		t.Error("caller history was modified")
	}
}

func TestGenerate_ToolRoundTrip(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{
		toolResponse("", call("c1", "record_unknown_question", `{"question":"Favourite colour?"}`)),
		textResponse("I've noted that."),
	}}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m", 8, quietLogger())

	got, err := loop.Generate(context.Background(), "S", nil, "What's your favourite colour?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "I've noted that." {
		t.Errorf("reply = %q", got)
	}
	if invoked != 1 {
		t.Errorf("handler invoked %d times, want 1", invoked)
	}

	second := mock.calls[1].Messages
	n := len(second)
	if n < 2 {
		t.Fatalf("second call has %d messages", n)
	}
	asst, res := second[n-2], second[n-1]
	if asst.Role != llm.RoleAssistant || len(asst.ToolCalls) != 1 || asst.ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool-call message = %+v", asst)
	}
	if res.Role != llm.RoleTool || res.ToolCallID != "c1" {
		t.Errorf("tool result = %+v", res)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil || payload["recorded"] != true {
		t.Errorf("tool result content = %q", res.Content)
	}
}

func TestGenerate_OneResultPerCall(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{
		toolResponse("",
			call("a", "record_unknown_question", `{"question":"one"}`),
			call("b", "delete_everything", `{}`),
			call("c", "record_unknown_question", `not json`),
		),
		textResponse("done"),
	}}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m", 8, quietLogger())

	if _, err := loop.Generate(context.Background(), "S", nil, "hi"); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msgs := mock.calls[1].Messages
	results := msgs[len(msgs)-3:]
	for i, id := range []string{"a", "b", "c"} {
		if results[i].Role != llm.RoleTool || results[i].ToolCallID != id {
			t.Errorf("result %d = %+v, want tool result for %s", i, results[i], id)
		}
	}
	if !strings.Contains(results[1].Content, "unknown tool: delete_everything") {
		t.Errorf("unknown tool result = %q", results[1].Content)
	}
	if !strings.Contains(results[2].Content, "error") {
		t.Errorf("malformed args result = %q", results[2].Content)
	}
	if invoked != 1 {
		t.Errorf("handler invoked %d times, want 1 (malformed call must not run)", invoked)
	}
}

func TestGenerate_ToolRoundLimitWithText(t *testing.T) {
	var responses []*llm.ChatResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, toolResponse("Let me check.", call("c", "record_unknown_question", `{"question":"q"}`)))
	}
	mock := &mockLLM{responses: responses}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m", 2, quietLogger())

	got, err := loop.Generate(context.Background(), "S", nil, "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Let me check." {
		t.Errorf("reply = %q, want last assistant text", got)
	}
	if invoked != 2 {
		t.Errorf("tool rounds executed = %d, want 2", invoked)
	}
	if len(mock.calls) != 3 {
		t.Errorf("model calls = %d, want 3", len(mock.calls))
	}
}

func TestGenerate_ToolRoundLimitNoText(t *testing.T) {
	var responses []*llm.ChatResponse
	for i := 0; i < 5; i++ {
		responses = append(responses, toolResponse("", call("c", "record_unknown_question", `{"question":"q"}`)))
	}
	mock := &mockLLM{responses: responses}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m", 1, quietLogger())

	_, err := loop.Generate(context.Background(), "S", nil, "hi")
	var exceeded *ErrToolLoopExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("err = %v, want *ErrToolLoopExceeded", err)
	}
	if exceeded.Rounds != 1 {
		t.Errorf("Rounds = %d", exceeded.Rounds)
	}
}

func TestGenerate_EmptyResponseNudge(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{
		textResponse(""),
		textResponse("Sorry, here you go."),
	}}
	loop := NewLoop(mock, nil, "m", 8, quietLogger())

	got, err := loop.Generate(context.Background(), "S", nil, "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Sorry, here you go." {
		t.Errorf("reply = %q", got)
	}
	last := mock.calls[1].Messages[len(mock.calls[1].Messages)-1]
	if last.Role != llm.RoleUser {
		t.Errorf("nudge role = %q", last.Role)
	}
}

func TestGenerate_EmptyAfterNudge(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse(""), textResponse("  ")}}
	loop := NewLoop(mock, nil, "m", 8, quietLogger())

	_, err := loop.Generate(context.Background(), "S", nil, "hi")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
	if len(mock.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(mock.calls))
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &mockLLM{chatErr: boom}
	loop := NewLoop(mock, nil, "m", 8, quietLogger())

	_, err := loop.Generate(context.Background(), "S", nil, "hi")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
}

func TestRevise_NoTools(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse("Better reply")}}
	var invoked int
	loop := NewLoop(mock, handlerRegistry(t, &invoked), "m", 8, quietLogger())

	got, err := loop.Revise(context.Background(), "REVISED SYSTEM", nil, "hi")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if got != "Better reply" {
		t.Errorf("reply = %q", got)
	}
	if len(mock.calls) != 1 || mock.calls[0].Tools != nil {
		t.Errorf("Revise should make one call without tools: %+v", mock.calls)
	}
	if mock.calls[0].Messages[0].Content != "REVISED SYSTEM" {
		t.Errorf("system prompt = %q", mock.calls[0].Messages[0].Content)
	}
}

func TestRevise_EmptyNudgedOnce(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{
		toolResponse("", call("c1", "capture_contact", `{}`)),
		textResponse("Here is a better answer."),
	}}
	loop := NewLoop(mock, nil, "m", 8, quietLogger())

	got, err := loop.Revise(context.Background(), "S", nil, "hi")
	if err != nil {
		t.Fatalf("Revise: %v", err)
	}
	if got != "Here is a better answer." {
		t.Errorf("reply = %q", got)
	}
	if len(mock.calls) != 2 || mock.calls[1].Tools != nil {
		t.Fatalf("calls = %+v", mock.calls)
	}
	last := mock.calls[1].Messages[len(mock.calls[1].Messages)-1]
	if last.Role != llm.RoleUser || last.Content != prompts.EmptyResponseNudge {
		t.Errorf("nudge = %+v", last)
	}
}

func TestRevise_EmptyAfterNudge(t *testing.T) {
	mock := &mockLLM{responses: []*llm.ChatResponse{textResponse(""), textResponse("")}}
	loop := NewLoop(mock, nil, "m", 8, quietLogger())

	if _, err := loop.Revise(context.Background(), "S", nil, "hi"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}
