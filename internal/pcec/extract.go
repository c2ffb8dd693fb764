package pcec

import (
	"strings"
)

// actionPrefixes mark a line as an explicit actionable item.
var actionPrefixes = []string{
	"- [ ]",
	"* [ ]",
	"[ ]",
	"TODO:",
	"ACTION:",
}

// minInsightLength filters out trivial lines from the insight list.
const minInsightLength = 20

// Extracted is what the extractor pulled from free-text model output.
type Extracted struct {
	Actions  []string `json:"actions,omitempty"`
	Insights []string `json:"insights,omitempty"`
}

// ExtractOutcomes scans free-text output for action-marked lines (checkbox,
// TODO, ACTION prefixes) and treats other non-trivial lines as insights.
// Headings and divider lines are skipped entirely.
func ExtractOutcomes(text string) Extracted {
	var out Extracted
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || isStructural(line) {
			continue
		}
		if action, ok := stripActionPrefix(line); ok {
			if action != "" {
				out.Actions = append(out.Actions, action)
			}
			continue
		}
		if len(line) >= minInsightLength {
			out.Insights = append(out.Insights, strings.TrimPrefix(strings.TrimPrefix(line, "- "), "* "))
		}
	}
	return out
}

func stripActionPrefix(line string) (string, bool) {
	for _, prefix := range actionPrefixes {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}
	return "", false
}

// isStructural reports bare headings and divider lines.
func isStructural(line string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	trimmed := strings.Trim(line, "-=*_ \t")
	return trimmed == ""
}
