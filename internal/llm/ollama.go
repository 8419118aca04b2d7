package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/envoy/internal/httpkit"
)

// OllamaClient is a client for the Ollama API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewModelClient(),
		logger:     logger.With("provider", "ollama"),
	}
}

// Ollama wire types. Tool arguments travel as JSON objects here, not
// strings, and Ollama assigns no call IDs.

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Format   json.RawMessage  `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	resp, err := c.do(ctx, ollamaRequest{
		Model:    model,
		Messages: convertToOllama(messages),
		Tools:    tools,
	})
	if err != nil {
		return nil, err
	}

	result := convertFromOllama(resp)

	// Some models write tool calls into content instead of tool_calls.
	if len(tools) > 0 && len(result.Message.ToolCalls) == 0 && result.Message.Content != "" {
		if parsed := parseTextToolCalls(result.Message.Content); len(parsed) > 0 {
			result.Message.ToolCalls = parsed
			result.Message.Content = ""
		}
	}
	return result, nil
}

// ChatStructured passes format's schema in the "format" field.
func (c *OllamaClient) ChatStructured(ctx context.Context, model string, messages []Message, format *ResponseFormat) (*ChatResponse, error) {
	if format == nil {
		return nil, fmt.Errorf("structured request requires a response format")
	}
	resp, err := c.do(ctx, ollamaRequest{
		Model:    model,
		Messages: convertToOllama(messages),
		Format:   format.Schema,
	})
	if err != nil {
		return nil, err
	}
	return convertFromOllama(resp), nil
}

func (c *OllamaClient) do(ctx context.Context, req ollamaRequest) (*ollamaResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("preparing request", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))

	var resp ollamaResponse
	if err := httpkit.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/api/chat", nil, payload, &resp); err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	c.logger.Debug("response received",
		"model", resp.Model,
		"input_tokens", resp.PromptEvalCount,
		"output_tokens", resp.EvalCount,
		"tool_calls", len(resp.Message.ToolCalls),
	)
	return &resp, nil
}

// Ping lists local models to check that Ollama answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	if err := httpkit.DoJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/api/tags", nil, nil, nil); err != nil {
		return fmt.Errorf("ollama: %w", err)
	}
	return nil
}

func convertToOllama(messages []Message) []ollamaMessage {
	// Ollama correlates tool results by name, so remember which call ID
	// belonged to which function.
	names := make(map[string]string)

	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = argumentsJSON(tc)
			om.ToolCalls = append(om.ToolCalls, otc)
			names[tc.ID] = tc.Function.Name
		}
		if m.Role == RoleTool {
			om.ToolName = names[m.ToolCallID]
		}
		out = append(out, om)
	}
	return out
}

func convertFromOllama(resp *ollamaResponse) *ChatResponse {
	msg := Message{Role: RoleAssistant, Content: resp.Message.Content}
	for _, tc := range resp.Message.ToolCalls {
		args := string(tc.Function.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:       newCallID(),
			Function: ToolFunction{Name: tc.Function.Name, Arguments: args},
		})
	}

	return &ChatResponse{
		Model:         resp.Model,
		Message:       msg,
		Done:          resp.Done,
		InputTokens:   resp.PromptEvalCount,
		OutputTokens:  resp.EvalCount,
		TotalDuration: time.Duration(resp.TotalDuration),
	}
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// parseTextToolCalls attempts to extract tool calls from content text.
// Many local models output tool calls as JSON in the content rather
// than using the native tool_calls field. Handles:
//   - Raw JSON object: {"name": "...", "arguments": {...}}
//   - JSON array: [{"name": "...", "arguments": {...}}]
//   - Tagged: <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	toCall := func(tc textCall) ToolCall {
		args := string(tc.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		return ToolCall{ID: newCallID(), Function: ToolFunction{Name: tc.Name, Arguments: args}}
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		result := make([]ToolCall, 0, len(calls))
		for _, c := range calls {
			if c.Name == "" {
				return nil
			}
			result = append(result, toCall(c))
		}
		return result
	}

	var single textCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []ToolCall{toCall(single)}
	}

	return nil
}
