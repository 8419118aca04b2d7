package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nugget/envoy/internal/llm"
	"github.com/nugget/envoy/internal/prompts"
)

// State is where a response sits in the draft/evaluate/revise cycle.
type State string

const (
	StateDrafting        State = "drafting"
	StateEvaluating      State = "evaluating"
	StateRevising        State = "revising"
	StateAccepted        State = "accepted"
	StateExhausted       State = "exhausted"
	StateEvaluatorFailed State = "evaluator_failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateExhausted || s == StateEvaluatorFailed
}

// Generator drafts and revises replies. Implemented by [Loop].
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error)
	Revise(ctx context.Context, systemPrompt string, history []llm.Message, userMessage string) (string, error)
}

// Judge evaluates a candidate reply. Implemented by [Evaluator].
type Judge interface {
	Evaluate(ctx context.Context, reply, message string, history []llm.Message) (Evaluation, error)
}

// Outcome is the result of one [Responder.Respond] call.
type Outcome struct {
	Reply string
	State State

	// Generations counts model generations, the draft included.
	Generations int
	Evaluations int

	// Feedback holds the evaluator's reasons for each rejection, in
	// order. Never shown to visitors.
	Feedback []string
}

// Responder answers one visitor message.
type Responder struct {
	gen          Generator
	judge        Judge
	systemPrompt string
	maxAttempts  int
	logger       *slog.Logger
}

// NewResponder creates a responder. A nil judge disables evaluation and
// every draft is accepted as is. maxAttempts bounds the total number of
// generations and is at least 1.
func NewResponder(gen Generator, judge Judge, systemPrompt string, maxAttempts int, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Responder{
		gen:          gen,
		judge:        judge,
		systemPrompt: systemPrompt,
		maxAttempts:  maxAttempts,
		logger:       logger.With("component", "responder"),
	}
}

// Respond drafts a reply and, with evaluation enabled, checks it and
// regenerates rejected replies until one is accepted or maxAttempts
// generations have been made. The last candidate is delivered when the
// evaluator keeps rejecting or fails. An error is returned only when
// drafting or revising itself fails.
func (r *Responder) Respond(ctx context.Context, history []llm.Message, message string) (*Outcome, error) {
	out := &Outcome{State: StateDrafting}

	reply, err := r.gen.Generate(ctx, r.systemPrompt, history, message)
	if err != nil {
		return nil, fmt.Errorf("draft reply: %w", err)
	}
	out.Generations++
	out.Reply = reply

	if r.judge == nil {
		out.State = StateAccepted
		r.finish(out)
		return out, nil
	}

	for {
		out.State = StateEvaluating
		ev, err := r.judge.Evaluate(ctx, out.Reply, message, history)
		if err != nil {
			r.logger.Warn("evaluation failed, delivering unchecked reply",
				"error", err,
				"generations", out.Generations,
			)
			out.State = StateEvaluatorFailed
			r.finish(out)
			return out, nil
		}
		out.Evaluations++

		if ev.IsAcceptable {
			out.State = StateAccepted
			r.finish(out)
			return out, nil
		}
		out.Feedback = append(out.Feedback, ev.Feedback)

		if out.Generations >= r.maxAttempts {
			r.logger.Warn("attempt limit reached, delivering last reply",
				"max_attempts", r.maxAttempts,
				"feedback", ev.Feedback,
			)
			out.State = StateExhausted
			r.finish(out)
			return out, nil
		}

		r.logger.Info("reply rejected, revising", "feedback", ev.Feedback, "generation", out.Generations)
		out.State = StateRevising
		revised, err := r.gen.Revise(ctx, prompts.RevisionPrompt(r.systemPrompt, out.Reply, ev.Feedback), history, message)
		if errors.Is(err, ErrEmptyResponse) {
			// The previous candidate still stands; only transport
			// failures abort the turn.
			r.logger.Warn("revision came back empty, delivering last reply",
				"generations", out.Generations,
			)
			out.State = StateExhausted
			r.finish(out)
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("revise reply: %w", err)
		}
		out.Generations++
		out.Reply = revised
	}
}

func (r *Responder) finish(out *Outcome) {
	r.logger.Info("response complete",
		"state", out.State,
		"generations", out.Generations,
		"evaluations", out.Evaluations,
		"reply_len", len(out.Reply),
	)
}
