package agent

import (
	"errors"
	"fmt"
)

// ErrToolLoopExceeded is returned by [Loop.Generate] when the model
// keeps requesting tools past the round limit without ever producing
// any text.
type ErrToolLoopExceeded struct {
	Rounds int
}

// Error implements the error interface.
func (e *ErrToolLoopExceeded) Error() string {
	return fmt.Sprintf("tool loop exceeded %d rounds without a reply", e.Rounds)
}

// ErrInvalidEvaluation is returned when the evaluator's output does not
// parse into exactly the is_acceptable and feedback fields.
var ErrInvalidEvaluation = errors.New("invalid evaluation")

// ErrEmptyResponse is returned when the model produces neither text
// nor tool calls, even after a nudge.
var ErrEmptyResponse = errors.New("model returned an empty response")
