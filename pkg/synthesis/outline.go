package synthesis

import "strings"

const (
	GraphStart = "[GRAPH_START]"
	GraphEnd   = "[GRAPH_END]"
)

// ExtractOutline returns the trimmed text between the first GraphStart marker
// and the GraphEnd marker that follows it.
func ExtractOutline(text string) (string, bool) {
	_, rest, ok := strings.Cut(text, GraphStart)
	if !ok {
		return "", false
	}
	inner, _, ok := strings.Cut(rest, GraphEnd)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(inner), true
}
