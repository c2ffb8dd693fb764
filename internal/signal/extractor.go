package signal

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Well-known signal tokens. Detail-carrying signals append `:<detail>` to
// the corresponding prefix constant.
const (
	SigLogError             = "log_error"
	SigRecurringError       = "recurring_error"
	SigUserFeatureRequest   = "user_feature_request"
	SigStablePlateau        = "stable_success_plateau"
	SigRepairLoop           = "repair_loop_detected"
	SigEvolutionStagnation  = "evolution_stagnation"
	PrefixErrsig            = "errsig:"
	PrefixHighToolUsage     = "high_tool_usage:"
	PrefixRepeatedToolUsage = "repeated_tool_usage:"
	PrefixCapability        = "capability_candidate:"
)

// Detection thresholds.
const (
	recurringErrorCount = 3  // same normalized error detail seen this often
	plateauWindow       = 10 // trailing responses that must all be clean
	highToolUsageCount  = 5  // total invocations across the window
	repeatedToolRun     = 3  // unbroken adjacent invocations
	repairLoopCount     = 3  // failed-after-mutation entries in one batch
	stagnationWindow    = 5  // trailing responses that are all errors
	maxDetailLen        = 48
)

// featureVocabulary is matched case-insensitively against user-authored text.
var featureVocabulary = []string{
	"add", "feature", "implement", "support", "能力", "功能", "希望",
}

// Extractor turns an ordered interaction-log window into a deduplicated
// signal set. Rules are independent and order-insensitive over the input;
// no signal is ever emitted twice.
type Extractor struct{}

// NewExtractor returns a stateless extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract applies every detection rule to the entry window and returns the
// resulting signal set sorted lexicographically. Nil or empty input yields
// an empty set.
func (x *Extractor) Extract(entries []LogEntry) []string {
	if len(entries) == 0 {
		return nil
	}

	set := make(map[string]struct{})
	emit := func(sig string) {
		if sig != "" {
			set[sig] = struct{}{}
		}
	}

	x.extractErrors(entries, emit)
	x.extractFeatureRequests(entries, emit)
	x.extractPlateau(entries, emit)
	x.extractToolUsage(entries, emit)
	x.extractRepairLoop(entries, emit)
	x.extractStagnation(entries, emit)
	x.extractCapabilityMentions(entries, emit)

	out := make([]string, 0, len(set))
	for sig := range set {
		out = append(out, sig)
	}
	sort.Strings(out)
	return out
}

// extractErrors emits log_error plus a normalized errsig per distinct error
// detail, and recurring_error when one detail recurs enough.
func (x *Extractor) extractErrors(entries []LogEntry, emit func(string)) {
	counts := make(map[string]int)
	for _, e := range entries {
		if !e.IsError() {
			continue
		}
		emit(SigLogError)
		detail := e.ErrorDetail
		if detail == "" {
			detail = e.Text
		}
		norm := NormalizeDetail(detail)
		if norm == "" {
			continue
		}
		emit(PrefixErrsig + norm)
		counts[norm]++
	}
	for _, n := range counts {
		if n >= recurringErrorCount {
			emit(SigRecurringError)
			return
		}
	}
}

func (x *Extractor) extractFeatureRequests(entries []LogEntry, emit func(string)) {
	for _, e := range entries {
		if !e.IsUser() || e.Text == "" {
			continue
		}
		lower := strings.ToLower(e.Text)
		for _, word := range featureVocabulary {
			if strings.Contains(lower, word) {
				emit(SigUserFeatureRequest)
				return
			}
		}
	}
}

// extractPlateau emits stable_success_plateau when the most recent window of
// responses is entirely error-free.
func (x *Extractor) extractPlateau(entries []LogEntry, emit func(string)) {
	responses := responseEntries(entries)
	if len(responses) < plateauWindow {
		return
	}
	for _, e := range responses[len(responses)-plateauWindow:] {
		if e.IsError() {
			return
		}
	}
	emit(SigStablePlateau)
}

func (x *Extractor) extractToolUsage(entries []LogEntry, emit func(string)) {
	totals := make(map[string]int)
	runTool, runLen := "", 0
	flagged := make(map[string]bool)

	for _, e := range entries {
		if e.Kind != EntryToolUse || e.ToolName == "" {
			runTool, runLen = "", 0
			continue
		}
		totals[e.ToolName]++
		if e.ToolName == runTool {
			runLen++
		} else {
			runTool, runLen = e.ToolName, 1
		}
		if runLen >= repeatedToolRun && !flagged[runTool] {
			flagged[runTool] = true
			emit(PrefixRepeatedToolUsage + runTool)
		}
	}
	for tool, n := range totals {
		if n >= highToolUsageCount {
			emit(PrefixHighToolUsage + tool)
		}
	}
}

func (x *Extractor) extractRepairLoop(entries []LogEntry, emit func(string)) {
	n := 0
	for _, e := range entries {
		if e.FailedAfterMutation {
			n++
		}
	}
	if n >= repairLoopCount {
		emit(SigRepairLoop)
	}
}

// extractStagnation emits both recurring_error and evolution_stagnation when
// the trailing responses are all errors.
func (x *Extractor) extractStagnation(entries []LogEntry, emit func(string)) {
	responses := responseEntries(entries)
	if len(responses) < stagnationWindow {
		return
	}
	for _, e := range responses[len(responses)-stagnationWindow:] {
		if !e.IsError() {
			return
		}
	}
	emit(SigRecurringError)
	emit(SigEvolutionStagnation)
}

func (x *Extractor) extractCapabilityMentions(entries []LogEntry, emit func(string)) {
	for _, e := range entries {
		if e.CapabilityMention != "" {
			emit(PrefixCapability + e.CapabilityMention)
		}
	}
}

func responseEntries(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsResponse() {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeDetail collapses runs of non-alphanumeric characters into single
// underscores, lowercases, trims, and truncates so repeated errors with
// volatile parts (paths, addresses, counters) still collide on one token.
func NormalizeDetail(detail string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(detail) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
		if b.Len() >= maxDetailLen {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}

// HasPrefixForm reports whether pattern is a prefix-wildcard pattern such as
// "errsig:"; used by gene matching to award partial scores.
func HasPrefixForm(pattern string) bool {
	idx := strings.Index(pattern, ":")
	return idx > 0
}

// PrefixOf returns the `kind:` prefix of a pattern, or the empty string when
// the pattern has no prefix form.
func PrefixOf(pattern string) string {
	idx := strings.Index(pattern, ":")
	if idx <= 0 {
		return ""
	}
	return pattern[:idx+1]
}

// Detail splits the detail suffix off a `kind:detail` signal.
func Detail(sig string) string {
	idx := strings.Index(sig, ":")
	if idx < 0 || idx == len(sig)-1 {
		return ""
	}
	return sig[idx+1:]
}

// Format builds a detail-carrying signal from its prefix and detail.
func Format(prefix, detail string) string {
	if !strings.HasSuffix(prefix, ":") {
		return fmt.Sprintf("%s:%s", prefix, detail)
	}
	return prefix + detail
}
