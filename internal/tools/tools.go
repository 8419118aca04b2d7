// Package tools defines the tools the model may call and dispatches
// its tool calls to local handlers.
//
// The set of tool identifiers is closed. A handler can only be
// registered under a known [ID], and a call naming anything else gets
// an error result instead of a handler.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/notify"
)

// ID identifies a tool.
type ID string

// Known tool identifiers.
const (
	CaptureContact        ID = "capture_contact"
	RecordUnknownQuestion ID = "record_unknown_question"
)

// knownIDs is the closed set of identifiers Register accepts.
var knownIDs = map[ID]bool{
	CaptureContact:        true,
	RecordUnknownQuestion: true,
}

// Known reports whether id is one of the defined tool identifiers.
func (id ID) Known() bool {
	return knownIDs[id]
}

// Param describes one tool parameter.
type Param struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Handler runs a tool. The returned value is marshalled to JSON as the
// tool result.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool represents a callable tool. Tools are immutable once registered.
type Tool struct {
	ID          ID
	Description string
	Parameters  map[string]Param
	Required    []string
	Handler     Handler
}

// Result is the outcome of one tool call, ready to append to the
// conversation as a tool message.
type Result struct {
	CallID  string
	Name    string
	Content string // JSON
}

// Message converts r into a tool-role conversation message.
func (r Result) Message() llm.Message {
	return llm.Message{Role: llm.RoleTool, Content: r.Content, ToolCallID: r.CallID}
}

// Registry holds available tools.
type Registry struct {
	tools  map[ID]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[ID]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry. It rejects identifiers outside
// the known set, duplicates, missing handlers, and required parameters
// that are not declared.
func (r *Registry) Register(t *Tool) error {
	if t == nil {
		return fmt.Errorf("register: nil tool")
	}
	if !t.ID.Known() {
		return &ErrUnknownTool{Name: string(t.ID)}
	}
	if _, dup := r.tools[t.ID]; dup {
		return fmt.Errorf("register %s: already registered", t.ID)
	}
	if t.Handler == nil {
		return fmt.Errorf("register %s: nil handler", t.ID)
	}
	for _, req := range t.Required {
		if _, ok := t.Parameters[req]; !ok {
			return fmt.Errorf("register %s: required parameter %q not declared", t.ID, req)
		}
	}
	r.tools[t.ID] = t
	return nil
}

// Definitions returns OpenAI-style function declarations for every
// registered tool, sorted by name so requests are deterministic.
func (r *Registry) Definitions() []map[string]any {
	ids := make([]string, 0, len(r.tools))
	for id := range r.tools {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	result := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		t := r.tools[ID(id)]

		props := make(map[string]any, len(t.Parameters))
		for name, p := range t.Parameters {
			props[name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
		}
		required := t.Required
		if required == nil {
			required = []string{}
		}

		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        id,
				"description": t.Description,
				"parameters": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		})
	}
	return result
}

// Dispatch runs one tool call and returns its result. It never returns
// an error: unknown tools, malformed arguments, handler failures and
// handler panics all become {"error": "..."} results tied to the call.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) (res Result) {
	name := call.Function.Name
	res = Result{CallID: call.ID, Name: name}

	log := r.logger.With("tool", name, "call_id", call.ID)
	if convID := ConversationIDFromContext(ctx); convID != "" {
		log = log.With("conversation_id", convID)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool handler panicked", "panic", p)
			res.Content = errorContent(fmt.Sprintf("tool %s failed", name))
		}
	}()

	tool := r.tools[ID(name)]
	if tool == nil {
		err := &ErrUnknownTool{Name: name}
		log.Warn("model called unknown tool")
		res.Content = errorContent(err.Error())
		return res
	}

	args, err := parseArgs(name, call.Function.Arguments)
	if err != nil {
		log.Warn("tool arguments rejected", "error", err, "raw", call.Function.Arguments)
		res.Content = errorContent(err.Error())
		return res
	}

	log.Debug("executing tool", "args", args)

	out, err := tool.Handler(ctx, args)
	if err != nil {
		log.Warn("tool failed", "error", err)
		res.Content = errorContent(err.Error())
		return res
	}

	data, err := json.Marshal(out)
	if err != nil {
		log.Error("tool result not serializable", "error", err)
		res.Content = errorContent(fmt.Sprintf("tool %s returned an unserializable result", name))
		return res
	}
	res.Content = string(data)
	return res
}

// parseArgs decodes a tool argument payload. Empty or null payloads
// mean no arguments.
func parseArgs(tool, raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ErrInvalidArguments{Tool: tool, Err: err}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func errorContent(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

// stringArg returns a trimmed string argument, or "" when absent or
// not a string.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// NewDefaultRegistry returns a registry with every Envoy tool
// registered.
func NewDefaultRegistry(persona string, sender notify.Sender, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	if err := r.RegisterContactTools(persona, sender); err != nil {
		return nil, err
	}
	if err := r.RegisterQuestionTools(); err != nil {
		return nil, err
	}
	return r, nil
}
