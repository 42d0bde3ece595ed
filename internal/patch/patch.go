// Package patch implements C3: extracting the set of file paths referenced
// by a unified diff and validating every one of them through the path guard
// before a single byte is written.
package patch

import (
	"strings"

	"github.com/wardenhq/warden/internal/pathguard"
	"github.com/wardenhq/warden/internal/tool"
)

const devNull = "/dev/null"

// ExtractPaths returns every file path referenced by diffText's header
// lines (diff --git a/X b/Y, --- a/X, +++ b/Y), in first-seen order with
// duplicates removed. /dev/null is never included. Parsing only looks at
// header lines, per the glossary's "parsed here by its header lines only".
func ExtractPaths(diffText string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || p == devNull {
			return
		}
		p = stripPrefix(p)
		if p == "" {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			a, b, ok := parseDiffGitLine(line)
			if ok {
				add(a)
				add(b)
			}
		case strings.HasPrefix(line, "--- "):
			add(strings.TrimPrefix(line, "--- "))
		case strings.HasPrefix(line, "+++ "):
			add(strings.TrimPrefix(line, "+++ "))
		}
	}

	return out
}

// parseDiffGitLine parses `diff --git a/X b/Y`, tolerating paths that
// themselves contain spaces by splitting on the literal " b/" marker rather
// than whitespace alone where possible, falling back to a split at the first
// space otherwise. The returned a side keeps its "a/" prefix.
func parseDiffGitLine(line string) (a, b string, ok bool) {
	rest := strings.TrimPrefix(line, "diff --git ")
	if rest == line {
		return "", "", false
	}
	idx := strings.Index(rest, " b/")
	if idx < 0 {
		idx = strings.Index(rest, " ")
		if idx < 0 {
			return "", "", false
		}
		return rest[:idx], rest[idx+1:], true
	}
	return rest[:idx], rest[idx+3:], true
}

// stripPrefix removes a leading "a/" or "b/" marker, tolerating diffs
// generated without the default prefixes.
func stripPrefix(p string) string {
	switch {
	case strings.HasPrefix(p, "a/"):
		return strings.TrimPrefix(p, "a/")
	case strings.HasPrefix(p, "b/"):
		return strings.TrimPrefix(p, "b/")
	default:
		return p
	}
}

// Stat summarizes a unified diff's per-file change kind, used to build the
// {added, removed, modified} path lists fs.apply_patch reports.
type Stat struct {
	Added    []string
	Removed  []string
	Modified []string
}

// ClassifyStat walks diffText's --- /+++ header pairs and buckets each file
// by whether its old or new side is /dev/null.
func ClassifyStat(diffText string) Stat {
	var stat Stat
	var pendingOld string
	haveOld := false

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			pendingOld = stripPrefix(strings.TrimSpace(strings.TrimPrefix(line, "--- ")))
			haveOld = true
		case strings.HasPrefix(line, "+++ "):
			if !haveOld {
				continue
			}
			newPath := stripPrefix(strings.TrimSpace(strings.TrimPrefix(line, "+++ ")))
			switch {
			case pendingOld == devNull && newPath != devNull:
				stat.Added = append(stat.Added, newPath)
			case newPath == devNull && pendingOld != devNull:
				stat.Removed = append(stat.Removed, pendingOld)
			case pendingOld != devNull && newPath != devNull:
				stat.Modified = append(stat.Modified, newPath)
			}
			haveOld = false
		}
	}
	return stat
}

// Validate extracts every path referenced by diffText and resolves each
// through guard. The whole patch fails on the first violation encountered
// (§4.1: "any rejection fails the whole patch before any bytes are
// written"). On success it returns the resolved, deduplicated relative
// paths in the same order ExtractPaths returned them.
func Validate(diffText string, guard *pathguard.Guard) ([]string, *tool.Error) {
	paths := ExtractPaths(diffText)
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		res, err := guard.Resolve(p)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, res.Relative)
	}
	return resolved, nil
}
