package prompts

import "fmt"

// revisionTemplate is appended to the base system prompt when a reply
// was rejected. Format verbs: rejected reply, feedback.
const revisionTemplate = `

## Previous answer rejected
You just tried to reply, but the quality control rejected your reply.

### Your attempted answer
%s

### Reason for rejection
%s

Write a new reply to the visitor's last message that addresses the reason for rejection.`

// RevisionPrompt returns base extended with the rejected reply and the
// evaluator's feedback.
func RevisionPrompt(base, rejectedReply, feedback string) string {
	if feedback == "" {
		feedback = "(no reason given)"
	}
	return base + fmt.Sprintf(revisionTemplate, rejectedReply, feedback)
}
