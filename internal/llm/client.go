// Package llm provides LLM client implementations.
package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request with the given tool
	// declarations and returns the response. The response either
	// carries text or tool calls.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStructured sends a chat completion request whose output is
	// constrained to the JSON schema in format. The JSON text is
	// returned as the message content.
	ChatStructured(ctx context.Context, model string, messages []Message, format *ResponseFormat) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
