package solidify

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// protectedPaths are never restored or deleted during rollback: manifests,
// the asset store, version-control metadata and dependency caches.
var protectedPaths = []string{
	"go.mod",
	"go.sum",
	"package.json",
	"package-lock.json",
	".evoloop",
	".git",
	"vendor",
	"node_modules",
}

// IsProtected reports whether the path, or any of its leading components,
// is on the protected list.
func IsProtected(path string) bool {
	clean := filepath.ToSlash(filepath.Clean(path))
	for _, p := range protectedPaths {
		if clean == p || strings.HasPrefix(clean, p+"/") {
			return true
		}
	}
	return false
}

// Rollbacker is the injected revert capability: restore a tracked file to
// its last committed content, or delete a newly created file. Both are
// per-file and best-effort; the pipeline aggregates failures.
type Rollbacker interface {
	Restore(path string) error
	Delete(path string) error
}

// GitRollbacker reverts files using the workspace's git checkout.
type GitRollbacker struct {
	dir string
}

// NewGitRollbacker roots the rollback at the given working directory.
func NewGitRollbacker(dir string) *GitRollbacker {
	return &GitRollbacker{dir: dir}
}

// Restore checks the file out from HEAD.
func (r *GitRollbacker) Restore(path string) error {
	cmd := exec.Command("git", "checkout", "--", path)
	cmd.Dir = r.dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s: %v: %s", path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Delete removes a newly created file.
func (r *GitRollbacker) Delete(path string) error {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(r.dir, path)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
