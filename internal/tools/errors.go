package tools

import "fmt"

// ErrUnknownTool is returned by Register for an ID outside the closed
// set, and carried in the error result when the model names a tool
// that was never registered.
type ErrUnknownTool struct {
	Name string
}

// Error implements the error interface.
func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ErrInvalidArguments reports a tool argument payload that is not a
// JSON object.
type ErrInvalidArguments struct {
	Tool string
	Err  error
}

// Error implements the error interface.
func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("invalid arguments: %v", e.Err)
}

// Unwrap returns the underlying decode error.
func (e *ErrInvalidArguments) Unwrap() error {
	return e.Err
}
