package reply

import (
	"fmt"
	"strings"

	"github.com/driftlinehq/driftline/internal/signals"
)

// BuildPersonaPrompt assembles the system instruction for an identified
// customer: the tenant persona, the open qualification questions with the
// completion-marker instruction, and the handoff-marker instruction.
func BuildPersonaPrompt(persona, businessName string, unansweredQuestions []string) string {
	var b strings.Builder

	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = fmt.Sprintf("You are a helpful customer support assistant for %s.", businessName)
	}
	b.WriteString(persona)
	b.WriteString("\n\n")

	if len(unansweredQuestions) > 0 {
		b.WriteString("Work through the following questions with the customer, one at a time, in a natural conversational way:\n")
		for _, question := range unansweredQuestions {
			b.WriteString("- ")
			b.WriteString(question)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b,
			"Whenever your reply asks one of these questions, append the keyword %s to the end of that reply. Never mention the keyword to the customer.\n\n",
			signals.CompletionMarker)
	}

	fmt.Fprintf(&b,
		"If the customer asks to speak with a person, or says something inappropriate or outside your knowledge, append the keyword %s to the end of your reply so a human can take over. Never mention that keyword either.",
		signals.HandoffMarker)

	return b.String()
}

// BuildSalesPrompt assembles the simpler persona-free instruction used before
// the visitor has identified themselves. Its only goal is to obtain an email
// address politely.
func BuildSalesPrompt(businessName string) string {
	name := strings.TrimSpace(businessName)
	if name == "" {
		name = "this business"
	}
	return fmt.Sprintf(
		"You are a welcoming assistant for %s. You do not yet know who the visitor is. "+
			"Answer briefly and warmly, and steer the conversation toward asking for the visitor's "+
			"email address so the team can follow up. Ask for the email naturally, never more than "+
			"once per reply, and never be pushy.",
		name)
}
