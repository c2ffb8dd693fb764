package solidify

import (
	"context"
	"os/exec"
	"strings"
)

// CommandRunner executes one validation command. The context carries the
// per-command timeout; implementations must honor it.
type CommandRunner interface {
	Run(ctx context.Context, command string) (output string, err error)
}

// ShellRunner runs validation commands through the shell in a fixed working
// directory. Commands come from stored genes, which the operator controls.
type ShellRunner struct {
	dir string
}

// NewShellRunner roots command execution at dir.
func NewShellRunner(dir string) *ShellRunner {
	return &ShellRunner{dir: dir}
}

// Run executes the command, returning its combined output. A non-zero exit
// or a context timeout surfaces as an error.
func (r *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
