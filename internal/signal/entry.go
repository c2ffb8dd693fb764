// Package signal converts raw agent interaction logs into named trigger
// signals. Signals are short string tokens, optionally carrying a detail
// suffix (`kind:detail`), and are produced transiently per evolution cycle.
package signal

// EntryKind tags the shape of a single interaction-log entry.
type EntryKind string

const (
	EntryMessage EntryKind = "message"  // Plain conversational turn
	EntryError   EntryKind = "error"    // Error condition observed in the session
	EntryToolUse EntryKind = "tool_use" // Tool invocation by the agent
	EntryCustom  EntryKind = "custom"   // Anything else (capability mentions, annotations)
)

// LogEntry is one entry of an agent session transcript. Entries are a tagged
// union: Kind decides which fields are meaningful, every other field is
// best-effort and may be empty.
type LogEntry struct {
	Kind EntryKind `json:"kind"`
	Role string    `json:"role,omitempty"` // user / assistant / system
	Text string    `json:"text,omitempty"`

	// Error entries
	ErrorDetail string `json:"error_detail,omitempty"`

	// Tool-use entries
	ToolName string `json:"tool_name,omitempty"`

	// Set when the entry records a failure that happened after a mutation
	// was applied, used for repair-loop detection.
	FailedAfterMutation bool `json:"failed_after_mutation,omitempty"`

	// Custom entries tagged as a capability mention carry the capability name.
	CapabilityMention string `json:"capability_mention,omitempty"`
}

// IsError reports whether the entry indicates an error condition.
func (e LogEntry) IsError() bool {
	return e.Kind == EntryError || e.ErrorDetail != ""
}

// IsUser reports whether the entry was authored by the user.
func (e LogEntry) IsUser() bool {
	return e.Role == "user"
}

// IsResponse reports whether the entry is agent output rather than user
// input. Error entries count as responses: they describe what the agent did.
func (e LogEntry) IsResponse() bool {
	if e.IsUser() {
		return false
	}
	return e.Kind == EntryMessage || e.Kind == EntryError || e.Kind == EntryToolUse
}
