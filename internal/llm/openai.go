package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nugget/envoy/internal/httpkit"
)

// OpenAIClient talks to the OpenAI Chat Completions API, or any
// compatible endpoint when a base URL is configured.
type OpenAIClient struct {
	api    *openai.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a new OpenAI client. An empty baseURL uses
// the public API.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = httpkit.NewModelClient()

	return &OpenAIClient{
		api:    openai.NewClientWithConfig(cfg),
		logger: logger.With("provider", "openai"),
	}
}

// Chat sends a chat completion request with tools offered on auto.
func (c *OpenAIClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAI(messages),
	}
	if len(tools) > 0 {
		req.Tools = convertToolsToOpenAI(tools)
		req.ToolChoice = "auto"
	}
	return c.complete(ctx, req)
}

// ChatStructured sends a chat completion request constrained to
// format's schema in strict mode.
func (c *OpenAIClient) ChatStructured(ctx context.Context, model string, messages []Message, format *ResponseFormat) (*ChatResponse, error) {
	if format == nil {
		return nil, fmt.Errorf("structured request requires a response format")
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAI(messages),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        format.Name,
				Description: format.Description,
				Schema:      format.Schema,
				Strict:      true,
			},
		},
	}
	return c.complete(ctx, req)
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (*ChatResponse, error) {
	start := time.Now()

	c.logger.Debug("preparing request",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"structured", req.ResponseFormat != nil,
	)
	if c.logger.Enabled(ctx, LevelTrace) {
		if payload, err := json.Marshal(req); err == nil {
			c.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("API error", "model", req.Model, "error", err)
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: no choices in response")
	}

	result := convertFromOpenAI(resp)
	result.TotalDuration = time.Since(start)

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"elapsed", result.TotalDuration.Round(time.Millisecond),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)

	return result, nil
}

// Ping lists models to verify the key and endpoint.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("openai ping: %w", err)
	}
	return nil
}

func convertToOpenAI(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// convertToolsToOpenAI converts function declarations in the
// {"type":"function","function":{...}} shape to SDK tools.
func convertToolsToOpenAI(tools []map[string]any) []openai.Tool {
	var result []openai.Tool
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  fn["parameters"],
			},
		})
	}
	return result
}

func convertFromOpenAI(resp openai.ChatCompletionResponse) *ChatResponse {
	choice := resp.Choices[0].Message

	msg := Message{
		Role:    RoleAssistant,
		Content: choice.Content,
	}
	for _, tc := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID: tc.ID,
			Function: ToolFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return &ChatResponse{
		Model:        resp.Model,
		Message:      msg,
		Done:         true,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
}
