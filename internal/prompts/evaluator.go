package prompts

import (
	"fmt"
	"strings"

	"github.com/nugget/envoy/internal/llm"
)

// evaluatorSystemTemplate instructs the judging model. Format verbs:
// name, name, name, summary, profile.
const evaluatorSystemTemplate = `You are an evaluator that decides whether a response to a question is acceptable.

You are shown a conversation between a visitor and an agent. Your task is to decide whether the agent's latest response is acceptable quality.

The agent is playing the role of %s and is representing %s on their website. The agent has been instructed to be professional and engaging, as if talking to a potential client or future employer who came across the website. The agent has been instructed to gently encourage the visitor to share an email address when they are engaged in discussion.

Judge the latest response on:
- Tone: professional, engaging and in character as %s.
- Factuality: every claim is supported by the summary and profile below. Invented facts are not acceptable.
- Contact: the request for contact details, if any, is soft and natural rather than pushy.

## Summary
%s

## Profile
%s

With this context, evaluate the latest response. Reply with whether it is acceptable and your feedback.`

// EvaluatorSystemPrompt returns the judging instructions for the
// persona.
func EvaluatorSystemPrompt(name, summary, profile string) string {
	return fmt.Sprintf(evaluatorSystemTemplate, name, name, name, orPlaceholder(summary), orPlaceholder(profile))
}

// EvaluatorUserPrompt renders the conversation, the visitor's latest
// message and the agent's reply for judging. Tool traffic is left out.
func EvaluatorUserPrompt(history []llm.Message, message, reply string) string {
	var b strings.Builder

	b.WriteString("Here's the conversation between the visitor and the agent:\n\n")
	wrote := false
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case llm.RoleUser:
			fmt.Fprintf(&b, "Visitor: %s\n", m.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&b, "Agent: %s\n", m.Content)
		default:
			continue
		}
		wrote = true
	}
	if !wrote {
		b.WriteString("(no earlier messages)\n")
	}

	fmt.Fprintf(&b, "\nHere's the latest message from the visitor:\n\n%s\n", message)
	fmt.Fprintf(&b, "\nHere's the latest response from the agent:\n\n%s\n", reply)
	b.WriteString("\nPlease evaluate the response, replying with whether it is acceptable and your feedback.")
	return b.String()
}
