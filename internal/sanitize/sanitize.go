// Package sanitize strips tool-calling control syntax from model output
// before it reaches the user.
package sanitize

import (
	"regexp"
	"strings"
)

const (
	toolCallMarker    = "TOOL_CALL:"
	toolResultsMarker = "TOOL_RESULTS:"
)

var extraNewlines = regexp.MustCompile(`\n{3,}`)

// Response removes TOOL_CALL lines and TOOL_RESULTS blocks (header through
// the first blank line), collapses runs of blank lines and trims the result.
// Response(Response(s)) == Response(s).
func Response(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	inResults := false
	for _, line := range lines {
		if inResults {
			if strings.TrimSpace(line) == "" {
				inResults = false
			}
			continue
		}
		upper := strings.ToUpper(line)
		switch {
		case strings.Contains(upper, toolResultsMarker):
			inResults = true
		case strings.Contains(upper, toolCallMarker):
		default:
			kept = append(kept, line)
		}
	}
	out := extraNewlines.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
