package reply

import (
	"strings"
	"testing"

	"github.com/driftlinehq/driftline/internal/signals"
)

func TestBuildPersonaPrompt(t *testing.T) {
	prompt := BuildPersonaPrompt("You are Max, the friendly helper.", "Acme", []string{
		"What is your budget?",
		"When do you plan to buy?",
	})
	if !strings.Contains(prompt, "You are Max, the friendly helper.") {
		t.Error("persona prompt missing tenant persona")
	}
	if !strings.Contains(prompt, "What is your budget?") {
		t.Error("persona prompt missing question list")
	}
	if !strings.Contains(prompt, signals.CompletionMarker) {
		t.Error("persona prompt missing completion marker instruction")
	}
	if !strings.Contains(prompt, signals.HandoffMarker) {
		t.Error("persona prompt missing handoff marker instruction")
	}
}

func TestBuildPersonaPromptNoQuestions(t *testing.T) {
	prompt := BuildPersonaPrompt("", "Acme", nil)
	if strings.Contains(prompt, signals.CompletionMarker) {
		t.Error("no completion instruction expected without questions")
	}
	if !strings.Contains(prompt, signals.HandoffMarker) {
		t.Error("handoff instruction must always be present")
	}
	if !strings.Contains(prompt, "Acme") {
		t.Error("default persona should mention the business name")
	}
}

func TestBuildSalesPrompt(t *testing.T) {
	prompt := BuildSalesPrompt("Acme")
	if !strings.Contains(prompt, "email") {
		t.Error("sales prompt must steer toward an email address")
	}
	if strings.Contains(prompt, signals.CompletionMarker) || strings.Contains(prompt, signals.HandoffMarker) {
		t.Error("sales prompt must not carry marker instructions")
	}
}
