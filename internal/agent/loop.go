// Package agent drafts, judges and revises replies on behalf of the
// persona.
//
// [Loop] runs the model with tools until it produces a plain reply.
// [Evaluator] asks a second model call whether that reply is
// acceptable. [Responder] ties them together: draft, evaluate, revise
// on rejection, up to a fixed number of generations.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/prompts"
	"github.com/nugget/envoy/internal/tools"
)

// Dispatcher declares tools to the model and runs its tool calls.
// Implemented by [tools.Registry].
type Dispatcher interface {
	Definitions() []map[string]any
	Dispatch(ctx context.Context, call llm.ToolCall) tools.Result
}

// Loop is the generation engine.
type Loop struct {
	llm           llm.Client
	tools         Dispatcher
	model         string
	maxToolRounds int
	logger        *slog.Logger
}

// NewLoop creates a generation loop. maxToolRounds below 1 means 1.
func NewLoop(client llm.Client, dispatcher Dispatcher, model string, maxToolRounds int, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxToolRounds < 1 {
		maxToolRounds = 1
	}
	return &Loop{
		llm:           client,
		tools:         dispatcher,
		model:         model,
		maxToolRounds: maxToolRounds,
		logger:        logger.With("component", "loop"),
	}
}

// Generate produces a reply to userMessage. While the model asks for
// tools, the assistant's tool-call message and one tool result per call
// are appended and the model is called again. At most maxToolRounds
// rounds of tools run; past that the last assistant text seen is
// returned, or *ErrToolLoopExceeded if there was none.
func (l *Loop) Generate(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error) {
	messages := buildMessages(systemPrompt, history, userMessage)

	var defs []map[string]any
	if l.tools != nil {
		defs = l.tools.Definitions()
	}

	var lastText string
	rounds := 0
	nudged := false

	for {
		l.logger.Debug("calling LLM", "model", l.model, "messages", len(messages), "round", rounds)

		resp, err := l.llm.Chat(ctx, l.model, messages, defs)
		if err != nil {
			return "", fmt.Errorf("chat: %w", err)
		}
		msg := resp.Message

		if len(msg.ToolCalls) == 0 {
			if strings.TrimSpace(msg.Content) != "" {
				l.logger.Debug("reply generated", "rounds", rounds, "output_tokens", resp.OutputTokens)
				return msg.Content, nil
			}
			if lastText != "" {
				return lastText, nil
			}
			if nudged {
				return "", ErrEmptyResponse
			}
			// One nudge for models that go quiet after tool results.
			l.logger.Warn("empty response, nudging model", "rounds", rounds)
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompts.EmptyResponseNudge})
			nudged = true
			continue
		}

		if strings.TrimSpace(msg.Content) != "" {
			lastText = msg.Content
		}

		if rounds >= l.maxToolRounds {
			l.logger.Warn("tool round limit reached",
				"max_tool_rounds", l.maxToolRounds,
				"pending_calls", len(msg.ToolCalls),
				"have_text", lastText != "",
			)
			if lastText != "" {
				return lastText, nil
			}
			return "", &ErrToolLoopExceeded{Rounds: l.maxToolRounds}
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})
		for _, tc := range msg.ToolCalls {
			var res tools.Result
			if l.tools == nil {
				res = tools.Result{CallID: tc.ID, Name: tc.Function.Name, Content: `{"error":"no tools available"}`}
			} else {
				res = l.tools.Dispatch(ctx, tc)
			}
			l.logger.Info("tool executed", "tool", res.Name, "call_id", res.CallID)
			messages = append(messages, res.Message())
		}
		rounds++
	}
}

// Revise produces a reply without offering tools. A reply with no
// text (tool calls included, since none were offered) gets the same
// single nudge as [Loop.Generate]; if that is empty too the result is
// [ErrEmptyResponse].
func (l *Loop) Revise(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error) {
	messages := buildMessages(systemPrompt, history, userMessage)

	for attempt := 0; attempt < 2; attempt++ {
		resp, err := l.llm.Chat(ctx, l.model, messages, nil)
		if err != nil {
			return "", fmt.Errorf("chat: %w", err)
		}
		if strings.TrimSpace(resp.Message.Content) != "" {
			return resp.Message.Content, nil
		}
		l.logger.Warn("empty revision", "tool_calls", len(resp.Message.ToolCalls), "nudged", attempt > 0)
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompts.EmptyResponseNudge})
	}
	return "", ErrEmptyResponse
}

// buildMessages assembles system prompt, prior turns and the new user
// message. The caller's history slice is never modified.
func buildMessages(systemPrompt string, history []llm.Message, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages
}
