package tools

import "context"

// conversationKey carries the conversation ID. An unexported struct
// type cannot collide with keys from other packages.
type conversationKey struct{}

// WithConversationID tags ctx with the chat a tool call belongs to, so
// handler logs and notifications can be tied back to it.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationIDFromContext returns the ID set by [WithConversationID],
// or "" for a context that never passed through the API.
func ConversationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(conversationKey{}).(string); ok {
		return id
	}
	return ""
}
