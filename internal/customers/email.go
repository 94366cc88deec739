package customers

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmail returns the first email-like token in text, or "" when none is
// present. Absence is not an error; it just means "no identity yet".
func ExtractEmail(text string) string {
	return emailPattern.FindString(text)
}

// LocalPart returns the part of an email address before the '@'.
func LocalPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
