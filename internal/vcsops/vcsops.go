// Package vcsops implements C6: status/diff/checkout/commit against a
// workspace's git checkout. These invocations shell out to git directly,
// bypassing cmdguard, because the invocation shape is fixed by this package
// and the caller only ever supplies positional, non-option arguments.
package vcsops

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wardenhq/warden/internal/tool"
)

// maxDiffBytes caps vcs.diff output (§4.5).
const maxDiffBytes = 500 * 1024

// Ops runs VCS tools against one workspace checkout.
type Ops struct {
	Root string
}

func New(root string) *Ops {
	return &Ops{Root: root}
}

func (o *Ops) run(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = o.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// FileStatus is one line of `git status --porcelain` decoded into the
// categories the wire protocol exposes.
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
}

// StatusResult is the response shape for vcs.status.
type StatusResult struct {
	Branch string       `json:"branch"`
	Ahead  int          `json:"ahead"`
	Behind int          `json:"behind"`
	Files  []FileStatus `json:"files"`
}

// Status parses `git status --porcelain` plus an ahead/behind probe against
// the upstream, if one is configured.
func (o *Ops) Status(ctx context.Context) (*StatusResult, *tool.Error) {
	branchOut, _, err := o.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "resolve branch: %v", err)
	}
	branch := strings.TrimSpace(branchOut)

	porcelain, _, err := o.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git status: %v", err)
	}

	files := make([]FileStatus, 0)
	for _, line := range strings.Split(porcelain, "\n") {
		if len(line) < 3 {
			continue
		}
		index, worktree := line[0], line[1]
		path := strings.TrimSpace(line[3:])
		files = append(files, FileStatus{Path: path, Status: classify(index, worktree)})
	}

	ahead, behind := 0, 0
	if countOut, _, err := o.run(ctx, "rev-list", "--count", "--left-right", "@{upstream}...HEAD"); err == nil {
		parts := strings.Fields(strings.TrimSpace(countOut))
		if len(parts) == 2 {
			behind, _ = strconv.Atoi(parts[0])
			ahead, _ = strconv.Atoi(parts[1])
		}
	}
	// absence of an upstream is not an error (§4.5); ahead/behind stay 0.

	return &StatusResult{Branch: branch, Ahead: ahead, Behind: behind, Files: files}, nil
}

// classify maps porcelain v1's two status columns to the wire categories.
func classify(index, worktree byte) string {
	switch {
	case index == '?' && worktree == '?':
		return "untracked"
	case index == 'U' || worktree == 'U' || (index == 'A' && worktree == 'A') || (index == 'D' && worktree == 'D'):
		return "conflicted"
	case index == 'A':
		return "added"
	case index == 'D' || worktree == 'D':
		return "deleted"
	case index == 'R':
		return "renamed"
	case index != ' ' && index != '?':
		return "staged"
	default:
		return "modified"
	}
}

// DiffResult is the response shape for vcs.diff.
type DiffResult struct {
	Diff              string `json:"diff"`
	FilesChanged      int    `json:"filesChanged"`
	Insertions        int    `json:"insertions"`
	Deletions         int    `json:"deletions"`
	TruncatedByPolicy bool   `json:"truncatedByPolicy,omitempty"`
}

// Diff returns the working-or-staged diff, optionally limited to path, and a
// parsed summary from `git diff --numstat`.
func (o *Ops) Diff(ctx context.Context, staged bool, path string) (*DiffResult, *tool.Error) {
	args := []string{"diff"}
	if staged {
		args = append(args, "--cached")
	}
	if path != "" {
		args = append(args, "--", path)
	}

	raw, _, err := o.run(ctx, args...)
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git diff: %v", err)
	}

	numstatArgs := append([]string{"diff", "--numstat"}, args[1:]...)
	numstat, _, err := o.run(ctx, numstatArgs...)
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git diff --numstat: %v", err)
	}

	filesChanged, insertions, deletions := parseNumstat(numstat)

	truncated := false
	if len(raw) > maxDiffBytes {
		raw = raw[:maxDiffBytes]
		truncated = true
	}

	return &DiffResult{
		Diff:              raw,
		FilesChanged:      filesChanged,
		Insertions:        insertions,
		Deletions:         deletions,
		TruncatedByPolicy: truncated,
	}, nil
}

func parseNumstat(out string) (files, insertions, deletions int) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		files++
		if n, err := strconv.Atoi(fields[0]); err == nil {
			insertions += n
		}
		if n, err := strconv.Atoi(fields[1]); err == nil {
			deletions += n
		}
	}
	return
}

// CheckoutResult is the response shape for vcs.checkout.
type CheckoutResult struct {
	PreviousBranch string `json:"previousBranch"`
	Branch         string `json:"branch"`
}

// Checkout switches branch, creating it with -b when create is true.
func (o *Ops) Checkout(ctx context.Context, branch string, create bool) (*CheckoutResult, *tool.Error) {
	if strings.HasPrefix(branch, "-") {
		return nil, tool.Errorf(tool.CodeVCSError, "invalid branch name %q", branch)
	}

	prevOut, _, err := o.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "resolve current branch: %v", err)
	}
	previous := strings.TrimSpace(prevOut)

	args := []string{"checkout"}
	if create {
		args = append(args, "-b")
	}
	args = append(args, branch)

	_, stderr, err := o.run(ctx, args...)
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git checkout: %s", strings.TrimSpace(stderr))
	}

	return &CheckoutResult{PreviousBranch: previous, Branch: branch}, nil
}

// CommitResult is the response shape for vcs.commit.
type CommitResult struct {
	SHA          string `json:"sha"`
	Message      string `json:"message"`
	FilesChanged int    `json:"filesChanged"`
}

// Commit stages the given files (or everything, when files is empty) and
// commits with message. A clean tree maps to VCS_ERROR with the exact
// reason "nothing to commit" (§4.5).
func (o *Ops) Commit(ctx context.Context, files []string, message string) (*CommitResult, *tool.Error) {
	if len(files) == 0 {
		if _, stderr, err := o.run(ctx, "add", "-A"); err != nil {
			return nil, tool.Errorf(tool.CodeVCSError, "git add: %s", strings.TrimSpace(stderr))
		}
	} else {
		args := append([]string{"add", "--"}, files...)
		if _, stderr, err := o.run(ctx, args...); err != nil {
			return nil, tool.Errorf(tool.CodeVCSError, "git add: %s", strings.TrimSpace(stderr))
		}
	}

	staged, _, err := o.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git diff --cached: %v", err)
	}
	if strings.TrimSpace(staged) == "" {
		return nil, tool.Errorf(tool.CodeVCSError, "nothing to commit")
	}
	filesChanged := len(strings.Split(strings.TrimSpace(staged), "\n"))

	_, commitStderr, err := o.run(ctx, "commit", "-m", message)
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "git commit: %s", strings.TrimSpace(commitStderr))
	}

	shaOut, _, err := o.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return nil, tool.Errorf(tool.CodeVCSError, "resolve HEAD: %v", err)
	}

	return &CommitResult{
		SHA:          strings.TrimSpace(shaOut),
		Message:      message,
		FilesChanged: filesChanged,
	}, nil
}
