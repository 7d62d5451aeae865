package courier

import (
	"strings"
	"unicode/utf8"
)

const maxSnippet = 256

// BodySnippet condenses a raw provider error body (which may be an HTML
// error page, empty, or otherwise unparseable) into a short diagnostic
// string safe to surface to a caller.
func BodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "(empty body)"
	}
	// Strip binary garbage rather than forwarding it.
	if !utf8.ValidString(s) {
		return "(non-text body)"
	}
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSnippet {
		s = s[:maxSnippet] + "..."
	}
	return s
}
