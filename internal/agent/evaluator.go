package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/prompts"
)

// Evaluation is the evaluator's verdict on one candidate reply.
type Evaluation struct {
	IsAcceptable bool   `json:"is_acceptable" jsonschema:"description=Whether the reply is acceptable to send to the visitor"`
	Feedback     string `json:"feedback" jsonschema:"description=Why the reply was accepted or rejected"`
}

// Evaluator judges candidate replies with a schema-constrained model
// call.
type Evaluator struct {
	llm          llm.Client
	model        string
	systemPrompt string
	format       *llm.ResponseFormat
	logger       *slog.Logger
}

// NewEvaluator creates an evaluator that uses systemPrompt for every
// judgement.
func NewEvaluator(client llm.Client, model, systemPrompt string, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	format, err := llm.NewResponseFormat("evaluation", "Verdict on a candidate reply", &Evaluation{})
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		llm:          client,
		model:        model,
		systemPrompt: systemPrompt,
		format:       format,
		logger:       logger.With("component", "evaluator"),
	}, nil
}

// Evaluate judges reply as an answer to message given the earlier
// history. Model errors pass through; unparsable output wraps
// [ErrInvalidEvaluation].
func (e *Evaluator) Evaluate(ctx context.Context, reply, message string, history []llm.Message) (Evaluation, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt},
		{Role: llm.RoleUser, Content: prompts.EvaluatorUserPrompt(history, message, reply)},
	}

	resp, err := e.llm.ChatStructured(ctx, e.model, messages, e.format)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}

	ev, err := ParseEvaluation(resp.Message.Content)
	if err != nil {
		e.logger.Warn("evaluator output rejected", "error", err, "content_len", len(resp.Message.Content))
		return Evaluation{}, err
	}

	e.logger.Debug("reply evaluated", "acceptable", ev.IsAcceptable, "feedback", ev.Feedback)
	return ev, nil
}

// ParseEvaluation decodes a single JSON object holding exactly the
// is_acceptable and feedback fields. Unknown fields, missing fields,
// wrong types and trailing data are all rejected. Empty feedback is
// allowed.
func ParseEvaluation(content string) (Evaluation, error) {
	var raw struct {
		IsAcceptable *bool   `json:"is_acceptable"`
		Feedback     *string `json:"feedback"`
	}

	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Evaluation{}, fmt.Errorf("%w: %v", ErrInvalidEvaluation, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Evaluation{}, fmt.Errorf("%w: trailing data after object", ErrInvalidEvaluation)
	}
	if raw.IsAcceptable == nil {
		return Evaluation{}, fmt.Errorf("%w: missing is_acceptable", ErrInvalidEvaluation)
	}
	if raw.Feedback == nil {
		return Evaluation{}, fmt.Errorf("%w: missing feedback", ErrInvalidEvaluation)
	}
	return Evaluation{IsAcceptable: *raw.IsAcceptable, Feedback: *raw.Feedback}, nil
}
