// Package gitmeta probes git repository metadata through the git binary.
// Every probe degrades to empty values when git is missing or the
// directory is not a repository; analysis never fails on account of git.
package gitmeta

import (
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Info is the repository metadata folded into an analysis snapshot.
type Info struct {
	IsRepository  bool      `json:"isRepository"`
	Branch        string    `json:"branch,omitempty"`
	HeadCommit    string    `json:"lastCommit,omitempty"`
	HeadSubject   string    `json:"headSubject,omitempty"`
	HeadTime      time.Time `json:"headTime"`
	RemoteURL     string    `json:"remoteUrl,omitempty"`
	Dirty         bool      `json:"dirty"`
	ChangedFiles  int       `json:"changedFiles"`
	UntrackedOnly bool      `json:"untrackedOnly"`
}

// Probe collects metadata for the repository containing root.
func Probe(root string) Info {
	info := Info{}
	if !IsRepository(root) {
		return info
	}
	info.IsRepository = true

	info.Branch, _ = run(root, "rev-parse", "--abbrev-ref", "HEAD")
	info.HeadCommit, _ = run(root, "rev-parse", "--short", "HEAD")
	info.HeadSubject, _ = run(root, "log", "-1", "--format=%s")
	if raw, err := run(root, "log", "-1", "--format=%ct"); err == nil {
		if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
			info.HeadTime = time.Unix(sec, 0).UTC()
		}
	}
	info.RemoteURL, _ = run(root, "remote", "get-url", "origin")

	if status, err := run(root, "status", "--porcelain"); err == nil && status != "" {
		lines := strings.Split(status, "\n")
		info.Dirty = true
		info.ChangedFiles = len(lines)
		info.UntrackedOnly = true
		for _, line := range lines {
			if !strings.HasPrefix(line, "??") {
				info.UntrackedOnly = false
				break
			}
		}
	}

	return info
}

// IsRepository reports whether root sits inside a git work tree.
func IsRepository(root string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = root
	return cmd.Run() == nil
}

// RepoRoot returns the top-level directory of the repository containing
// start, or an empty string when start is not inside one.
func RepoRoot(start string) string {
	out, err := run(start, "rev-parse", "--show-toplevel")
	if err != nil {
		return ""
	}
	return out
}

func run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
