package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitSnapshot reads source files as committed at HEAD. Files modified in the
// working tree are read from disk; outside a git repository every read goes
// to disk.
type GitSnapshot struct {
	HeadCommitSHA string
	IsGitRepo     bool

	topLevel string
	modified map[string]bool // absolute paths changed relative to HEAD
}

// OpenGitSnapshot inspects the repository containing root
func OpenGitSnapshot(root string) (*GitSnapshot, error) {
	snapshot := &GitSnapshot{modified: make(map[string]bool)}

	top, err := gitOutput(root, "rev-parse", "--show-toplevel")
	if err != nil {
		return snapshot, nil
	}
	snapshot.IsGitRepo = true
	snapshot.topLevel = top

	snapshot.HeadCommitSHA, err = gitOutput(root, "rev-parse", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD commit SHA: %w", err)
	}

	changed, err := gitOutput(root, "diff", "--name-only", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to get modified files: %w", err)
	}
	for _, file := range strings.Split(changed, "\n") {
		if file != "" {
			snapshot.modified[filepath.Join(top, file)] = true
		}
	}

	return snapshot, nil
}

// ReadFile returns the HEAD content of path unless it was modified since.
// Files never committed yield an error.
func (s *GitSnapshot) ReadFile(path string) ([]byte, error) {
	if !s.IsGitRepo {
		return os.ReadFile(path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// git reports the top level with symlinks resolved
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}
	if s.modified[absPath] {
		return os.ReadFile(absPath)
	}

	relPath, err := filepath.Rel(s.topLevel, absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get relative path: %w", err)
	}

	cmd := exec.Command("git", "show", fmt.Sprintf("HEAD:%s", filepath.ToSlash(relPath)))
	cmd.Dir = s.topLevel
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to get file content from git: %w", err)
	}
	return output, nil
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}
