package tools

import "context"

// RegisterQuestionTools adds record_unknown_question, which logs a
// question the persona documents could not answer so the owner can
// follow up.
func (r *Registry) RegisterQuestionTools() error {
	return r.Register(&Tool{
		ID:          RecordUnknownQuestion,
		Description: "Always use this tool to record any question that couldn't be answered because you didn't know the answer.",
		Parameters: map[string]Param{
			"question": {Type: "string", Description: "The question that couldn't be answered"},
		},
		Required: []string{"question"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			r.logger.Warn("unknown question recorded", "question", stringArg(args, "question"))
			return map[string]bool{"recorded": true}, nil
		},
	})
}
