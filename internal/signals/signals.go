// Package signals extracts embedded control signals from chat text.
//
// Model output can carry two sentinel markers: the handoff marker asks for
// escalation to a human, the completion marker flags that a qualification
// question was just asked. Visitor text is scanned against a fixed keyword
// list for explicit requests to talk to a person. The rules live in one
// ordered table so they can be tested and extended without touching the
// orchestration logic.
package signals

import (
	"regexp"
	"strings"
)

// Sentinel markers the model is instructed to embed in its replies.
const (
	HandoffMarker    = "(realtime)"
	CompletionMarker = "(complete)"
)

// linkReplyPrefix is the fixed sentence used when a reply is rewritten around
// its first embedded URL.
const linkReplyPrefix = "Great! You can follow this link to continue: "

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// handoffKeywords are case-insensitive substrings in visitor text that force
// an immediate handoff without consulting the model.
var handoffKeywords = []string{
	"talk to someone",
	"talk to a person",
	"real person",
	"real human",
	"speak to an agent",
	"live agent",
	"speak with a human",
	"talk to a human",
	"need a human",
	"human agent",
}

// Result is the outcome of scanning one assistant reply.
type Result struct {
	// Handoff is true when the reply carried the handoff marker.
	Handoff bool
	// Complete is true when the reply carried the completion marker.
	Complete bool
	// URL is the first well-formed URL in the reply, if any.
	URL string
	// Text is what the transcript stores: the handoff marker is stripped, the
	// completion marker is retained (the next turn detects it on the stored
	// row), and a URL reply is rewritten to the link template. Handoff takes
	// precedence over URL rewriting.
	Text string
	// Display is Text with the completion marker also removed; every
	// visitor-facing surface of the turn shows this form. Already-persisted
	// turns are never re-stripped.
	Display string
}

// rule is one (pattern, action) pair of the assistant scan. Rules run in
// order; each may update the result and transform the stored text.
type rule struct {
	name  string
	apply func(text string, r *Result) string
}

var assistantRules = []rule{
	{
		name: "handoff-marker",
		apply: func(text string, r *Result) string {
			if !strings.Contains(text, HandoffMarker) {
				return text
			}
			r.Handoff = true
			return strings.TrimSpace(strings.ReplaceAll(text, HandoffMarker, ""))
		},
	},
	{
		name: "completion-marker",
		apply: func(text string, r *Result) string {
			r.Complete = strings.Contains(text, CompletionMarker)
			return text
		},
	},
	{
		name: "url",
		apply: func(text string, r *Result) string {
			url := trimURL(urlPattern.FindString(text))
			if url == "" {
				return text
			}
			r.URL = url
			if r.Handoff {
				// Handoff wins; keep the reply as-is.
				return text
			}
			return linkReplyPrefix + url
		},
	},
}

// ParseAssistant scans generated text for markers and URLs and returns the
// extracted signals along with the text to persist and the text to render.
func ParseAssistant(text string) Result {
	result := Result{}
	for _, r := range assistantRules {
		text = r.apply(text, &result)
	}
	result.Text = strings.TrimSpace(text)
	result.Display = StripCompletion(result.Text)
	return result
}

// HasCompletion reports whether an already-generated turn carried the
// completion marker. Used against the previous assistant turn in history.
func HasCompletion(text string) bool {
	return strings.Contains(text, CompletionMarker)
}

// StripCompletion removes the completion marker for rendering.
func StripCompletion(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, CompletionMarker, ""))
}

// MatchesHandoffKeyword reports whether visitor text contains any of the
// fixed realtime-intent keywords.
func MatchesHandoffKeyword(text string) bool {
	lowered := strings.ToLower(text)
	for _, keyword := range handoffKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// trimURL removes punctuation glued onto the end of an extracted URL.
func trimURL(url string) string {
	return strings.TrimRight(url, ".,;:!?)\"'")
}
