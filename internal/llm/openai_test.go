package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// openAIServer serves one canned chat completion and records the
// decoded request body.
func openAIServer(t *testing.T, reply string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, captured)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIChat_ToolCalls(t *testing.T) {
	var captured map[string]any
	srv := openAIServer(t, `{
		"id": "chatcmpl-1",
		"model": "gpt-4o-mini",
		"choices": [{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_abc","type":"function","function":{"name":"capture_contact","arguments":"{\"email\":\"jane@x.com\"}"}}
		]},"finish_reason":"tool_calls"}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 7, "total_tokens": 27}
	}`, &captured)

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", quietLogger())
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "capture_contact",
			"description": "Record a visitor's contact details",
			"parameters":  map[string]any{"type": "object"},
		},
	}}

	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "I'm jane@x.com"},
	}, tools)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if captured["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", captured["tool_choice"])
	}
	if ts, _ := captured["tools"].([]any); len(ts) != 1 {
		t.Errorf("tools = %v", captured["tools"])
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_abc" || tc.Function.Name != "capture_contact" || tc.Function.Arguments != `{"email":"jane@x.com"}` {
		t.Errorf("tool call = %+v", tc)
	}
	if resp.InputTokens != 20 || resp.OutputTokens != 7 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenAIChatStructured_StrictSchema(t *testing.T) {
	var captured map[string]any
	srv := openAIServer(t, `{
		"id": "chatcmpl-2",
		"model": "gpt-4o-mini",
		"choices": [{"index":0,"message":{"role":"assistant","content":"{\"is_acceptable\":true,\"feedback\":\"\"}"},"finish_reason":"stop"}]
	}`, &captured)

	type verdict struct {
		OK bool `json:"ok"`
	}
	format, err := NewResponseFormat("verdict", "A verdict", verdict{})
	if err != nil {
		t.Fatalf("NewResponseFormat: %v", err)
	}

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", quietLogger())
	resp, err := c.ChatStructured(context.Background(), "gpt-4o-mini", []Message{{Role: RoleUser, Content: "judge"}}, format)
	if err != nil {
		t.Fatalf("ChatStructured: %v", err)
	}

	rf, _ := captured["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Fatalf("response_format = %v", captured["response_format"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != "verdict" || js["strict"] != true {
		t.Errorf("json_schema = %v", js)
	}
	schema, _ := js["schema"].(map[string]any)
	if schema["additionalProperties"] != false {
		t.Errorf("schema additionalProperties = %v, want false", schema["additionalProperties"])
	}
	if _, ok := captured["tools"]; ok {
		t.Error("structured request should not carry tools")
	}
	if resp.Message.Content != `{"is_acceptable":true,"feedback":""}` {
		t.Errorf("content = %q", resp.Message.Content)
	}
}

func TestOpenAIChat_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1", quietLogger())
	if _, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestConvertToOpenAI_ToolRoundTrip(t *testing.T) {
	msgs := convertToOpenAI([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Function: ToolFunction{Name: "capture_contact", Arguments: `{"email":"a@b.com"}`}}}},
		{Role: RoleTool, ToolCallID: "call_1", Content: `{"sent":false}`},
	})

	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Arguments != `{"email":"a@b.com"}` {
		t.Errorf("assistant tool calls = %+v", msgs[0].ToolCalls)
	}
	if msgs[1].ToolCallID != "call_1" {
		t.Errorf("tool_call_id = %q", msgs[1].ToolCallID)
	}
}
