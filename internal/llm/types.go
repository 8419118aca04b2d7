package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // Provider-assigned, echoed back on the tool result
	Function ToolFunction `json:"function"`
}

// ToolFunction names the function to run and carries its arguments as
// the raw JSON text the model produced. The text may be malformed;
// parsing is the dispatcher's job.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatResponse is the unified response from any LLM provider.
// All fields use proper Go types; wire format conversion happens
// at provider boundaries.
type ChatResponse struct {
	Model   string
	Message Message
	Done    bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Populated when the provider reports it.
	TotalDuration time.Duration
}

// ResponseFormat constrains a completion to JSON matching Schema.
type ResponseFormat struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// NewResponseFormat reflects a JSON schema from the Go type of v. The
// schema is inlined, closed to additional properties, and marks every
// field without omitempty as required, which is what strict
// structured-output modes expect.
func NewResponseFormat(name, description string, v any) (*ResponseFormat, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		Anonymous:                 true,
		ExpandedStruct:            true,
	}
	schema := r.Reflect(v)
	schema.Version = ""

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	return &ResponseFormat{Name: name, Description: description, Schema: raw}, nil
}

// argumentsJSON returns the call's arguments as a JSON object suitable
// for providers that want an object rather than a string. Malformed or
// empty arguments become {}.
func argumentsJSON(tc ToolCall) json.RawMessage {
	if tc.Function.Arguments != "" && json.Valid([]byte(tc.Function.Arguments)) {
		return json.RawMessage(tc.Function.Arguments)
	}
	return json.RawMessage("{}")
}
