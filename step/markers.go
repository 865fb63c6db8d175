package step

import "strings"

// DefaultFinalMarkers are the terminal prefixes the assistant is prompted
// to use. The exact strings are policy, not structure; engine and session
// configuration can override them.
var DefaultFinalMarkers = []string{"FINAL SUMMARY:", "FINAL ANSWER:"}

// IsFinalText reports whether text begins with one of the markers,
// ignoring leading whitespace and case. A nil markers slice means the
// defaults.
func IsFinalText(text string, markers []string) bool {
	if markers == nil {
		markers = DefaultFinalMarkers
	}
	trimmed := strings.TrimSpace(text)
	for _, m := range markers {
		if len(trimmed) >= len(m) && strings.EqualFold(trimmed[:len(m)], m) {
			return true
		}
	}
	return false
}

// StripMarker removes a recognized terminal marker prefix, returning the
// remainder trimmed of leading whitespace. Text without a marker is
// returned unchanged.
func StripMarker(text string, markers []string) string {
	if markers == nil {
		markers = DefaultFinalMarkers
	}
	trimmed := strings.TrimSpace(text)
	for _, m := range markers {
		if len(trimmed) >= len(m) && strings.EqualFold(trimmed[:len(m)], m) {
			return strings.TrimSpace(trimmed[len(m):])
		}
	}
	return text
}
