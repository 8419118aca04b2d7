package prompts

import (
	"strings"
	"testing"

	"github.com/nugget/envoy/internal/llm"
)

func TestSystemPrompt_IncludesPersona(t *testing.T) {
	got := SystemPrompt("Jane Doe", "Builds agents.", "Staff Engineer at Acme.")

	for _, want := range []string{
		"You are acting as Jane Doe",
		"Builds agents.",
		"Staff Engineer at Acme.",
		"record_unknown_question",
		"capture_contact",
		"email",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("SystemPrompt missing %q", want)
		}
	}
	if strings.Contains(got, NotFoundPlaceholder) {
		t.Error("placeholder should not appear when documents are present")
	}
	if strings.Contains(got, "%!") {
		t.Error("SystemPrompt has a formatting error")
	}
}

func TestSystemPrompt_MissingDocuments(t *testing.T) {
	got := SystemPrompt("Jane Doe", "", "")

	if n := strings.Count(got, NotFoundPlaceholder); n != 2 {
		t.Errorf("placeholder count = %d, want 2 (summary and profile)", n)
	}
}

func TestRevisionPrompt(t *testing.T) {
	base := SystemPrompt("Jane", "s", "p")
	got := RevisionPrompt(base, "I was an astronaut.", "Not supported by the profile.")

	if !strings.HasPrefix(got, base) {
		t.Error("RevisionPrompt should extend the base prompt")
	}
	if !strings.Contains(got, "I was an astronaut.") {
		t.Error("RevisionPrompt missing rejected reply")
	}
	if !strings.Contains(got, "Not supported by the profile.") {
		t.Error("RevisionPrompt missing feedback")
	}
}

func TestRevisionPrompt_EmptyFeedback(t *testing.T) {
	got := RevisionPrompt("base", "reply", "")
	if !strings.Contains(got, "(no reason given)") {
		t.Errorf("empty feedback should get a marker, got %q", got)
	}
}

func TestEvaluatorSystemPrompt(t *testing.T) {
	got := EvaluatorSystemPrompt("Jane Doe", "", "Profile text")

	if !strings.Contains(got, "representing Jane Doe") {
		t.Error("evaluator prompt missing persona name")
	}
	if !strings.Contains(got, NotFoundPlaceholder) || !strings.Contains(got, "Profile text") {
		t.Error("evaluator prompt should carry the same grounding as the system prompt")
	}
	if strings.Contains(got, "%!") {
		t.Error("EvaluatorSystemPrompt has a formatting error")
	}
}

func TestEvaluatorUserPrompt(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "Hi there"},
		{Role: llm.RoleAssistant, Content: "Hello! How can I help?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1"}}},
		{Role: llm.RoleTool, Content: `{"recorded":true}`, ToolCallID: "c1"},
	}

	got := EvaluatorUserPrompt(history, "Where did you study?", "At MIT.")

	for _, want := range []string{
		"Visitor: Hi there",
		"Agent: Hello! How can I help?",
		"Where did you study?",
		"At MIT.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("EvaluatorUserPrompt missing %q", want)
		}
	}
	if strings.Contains(got, "recorded") {
		t.Error("tool payloads should not reach the evaluator transcript")
	}
}

func TestEvaluatorUserPrompt_NoHistory(t *testing.T) {
	got := EvaluatorUserPrompt(nil, "Hi", "Hello")
	if !strings.Contains(got, "(no earlier messages)") {
		t.Errorf("empty history marker missing: %q", got)
	}
}
