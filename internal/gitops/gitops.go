// Package gitops records which revision of the training directory a run
// used, so trainer configs can be traced back after the fact.
package gitops

import (
	"fmt"
	"os/exec"
	"strings"
)

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// Revision is the commit checked out in dir.
func Revision(dir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CaptureChanges returns the uncommitted changes to tracked files in dir.
// The index is left alone.
func CaptureChanges(dir string) ([]byte, error) {
	diff := exec.Command("git", "diff", "HEAD")
	diff.Dir = dir
	out, err := diff.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff HEAD: %w", err)
	}
	return out, nil
}
