package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"evoloop/internal/signal"
	"evoloop/internal/solidify"
)

// FileBridge reads JSONL session transcripts from a directory and dispatches
// sub-executions through the agent runtime binary.
type FileBridge struct {
	sessionsDir string
	runtimeBin  string
	workDir     string
	log         *zap.Logger
}

// NewFileBridge wires a bridge. The logger may be nil.
func NewFileBridge(sessionsDir, runtimeBin, workDir string, log *zap.Logger) *FileBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileBridge{
		sessionsDir: sessionsDir,
		runtimeBin:  runtimeBin,
		workDir:     workDir,
		log:         log,
	}
}

// rawEntry is the lenient transcript line shape: real transcripts are
// heterogeneous, so every field is optional and unknown fields are ignored.
type rawEntry struct {
	Type       string `json:"type,omitempty"`
	Role       string `json:"role,omitempty"`
	Content    string `json:"content,omitempty"`
	Text       string `json:"text,omitempty"`
	Error      string `json:"error,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
	Tool       string `json:"tool,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	PostMut    bool   `json:"failed_after_mutation,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// RecentSessions returns up to n transcripts for the agent, newest files
// last so the extractor's trailing-window rules see the latest activity.
// Unparsable lines are skipped, not fatal.
func (b *FileBridge) RecentSessions(agent string, n int) ([][]signal.LogEntry, error) {
	dir := b.sessionsDir
	if agent != "" {
		candidate := filepath.Join(dir, agent)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			dir = candidate
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("bridge: list sessions: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		return modTime(matches[i]).Before(modTime(matches[j]))
	})
	if n > 0 && len(matches) > n {
		matches = matches[len(matches)-n:]
	}

	sessions := make([][]signal.LogEntry, 0, len(matches))
	for _, path := range matches {
		entries, err := b.readTranscript(path)
		if err != nil {
			b.log.Warn("skipping unreadable transcript", zap.String("path", path), zap.Error(err))
			continue
		}
		sessions = append(sessions, entries)
	}
	return sessions, nil
}

func (b *FileBridge) readTranscript(path string) ([]signal.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []signal.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw rawEntry
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		entries = append(entries, toLogEntry(raw))
	}
	return entries, scanner.Err()
}

// toLogEntry maps the lenient wire shape onto the tagged union the extractor
// expects.
func toLogEntry(raw rawEntry) signal.LogEntry {
	text := raw.Content
	if text == "" {
		text = raw.Text
	}
	entry := signal.LogEntry{
		Role:                raw.Role,
		Text:                text,
		FailedAfterMutation: raw.PostMut,
	}

	tool := raw.ToolName
	if tool == "" {
		tool = raw.Tool
	}

	switch {
	case raw.Error != "" || raw.IsError || raw.Type == "error":
		entry.Kind = signal.EntryError
		entry.ErrorDetail = raw.Error
		if entry.ErrorDetail == "" {
			entry.ErrorDetail = text
		}
	case tool != "" || raw.Type == "tool_use":
		entry.Kind = signal.EntryToolUse
		entry.ToolName = tool
	case raw.Capability != "":
		entry.Kind = signal.EntryCustom
		entry.CapabilityMention = raw.Capability
	default:
		entry.Kind = signal.EntryMessage
	}
	return entry
}

// Dispatch runs the task through the runtime binary, bounded by the
// timeout, and measures the resulting file changes via git.
func (b *FileBridge) Dispatch(ctx context.Context, task string, timeout time.Duration) (*ExecutionReport, error) {
	if b.runtimeBin == "" {
		return nil, fmt.Errorf("bridge: no runtime binary configured")
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, b.runtimeBin, "-p", task)
	cmd.Dir = b.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("bridge: dispatch failed: %w: %s", err, truncate(string(out), 400))
	}

	changes, err := b.collectChanges(runCtx)
	if err != nil {
		b.log.Warn("could not measure change set", zap.Error(err))
		changes = solidify.ChangeSet{}
	}
	return &ExecutionReport{Output: string(out), Changes: changes}, nil
}

// WorkingChanges measures the current uncommitted working-tree state.
func (b *FileBridge) WorkingChanges(ctx context.Context) (solidify.ChangeSet, error) {
	return b.collectChanges(ctx)
}

// collectChanges derives the change set from git status and diff stats.
func (b *FileBridge) collectChanges(ctx context.Context) (solidify.ChangeSet, error) {
	var changes solidify.ChangeSet

	status := exec.CommandContext(ctx, "git", "status", "--porcelain")
	status.Dir = b.workDir
	out, err := status.Output()
	if err != nil {
		return changes, fmt.Errorf("git status: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if strings.HasPrefix(line, "??") {
			changes.NewFiles = append(changes.NewFiles, path)
		} else {
			changes.ChangedFiles = append(changes.ChangedFiles, path)
		}
	}

	diff := exec.CommandContext(ctx, "git", "diff", "--numstat")
	diff.Dir = b.workDir
	out, err = diff.Output()
	if err != nil {
		return changes, fmt.Errorf("git diff: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if added, err := strconv.Atoi(fields[0]); err == nil {
			changes.LinesAdded += added
		}
		if deleted, err := strconv.Atoi(fields[1]); err == nil {
			changes.LinesDeleted += deleted
		}
	}
	return changes, nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
