// Package pathguard implements C1: canonicalising, normalising and
// pattern-matching every path before any filesystem operation touches it.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/wardenhq/warden/internal/tool"
)

// BuiltinDenyPatterns are shipped unconditionally and cannot be overridden
// or removed by user configuration (§4.1).
var BuiltinDenyPatterns = []string{
	".git/config",
	".git/credentials",
	".git/objects/**",
	".git/refs/**",
	".ssh/**",
	"id_rsa*",
	"id_ed25519*",
	"id_ecdsa*",
	".aws/**",
	".env",
	".env.*",
	"secrets/**",
	".secrets/**",
	"*.pem",
	"*.key",
	"credentials*",
	"password*",
	"token*",
	".npmrc",
	".pypirc",
	".DS_Store",
	"Thumbs.db",
	"**/.git/config",
	"**/.git/credentials",
	"**/.git/objects/**",
	"**/.git/refs/**",
	"**/.ssh/**",
	"**/id_rsa*",
	"**/id_ed25519*",
	"**/id_ecdsa*",
	"**/.aws/**",
	"**/.env",
	"**/.env.*",
	"**/secrets/**",
	"**/.secrets/**",
	"**/*.pem",
	"**/*.key",
	"**/credentials*",
	"**/password*",
	"**/token*",
	"**/.npmrc",
	"**/.pypirc",
	"**/.DS_Store",
	"**/Thumbs.db",
}

// Result is a successfully resolved, workspace-contained path.
type Result struct {
	Absolute string
	Relative string
}

// Guard resolves and validates paths against one workspace root plus a set
// of deny-pattern layers, checked in order: built-in, then global config,
// then workspace-specific (§4.1 step 5).
type Guard struct {
	Root                string
	GlobalDenyPatterns  []string
	WorkspaceDenyGlobs  []string
}

// New returns a Guard for the given workspace root and config/workspace
// deny-glob layers. root must already be absolute and canonical (the
// Workspace invariant from §3); Guard does not re-canonicalize it.
func New(root string, globalDeny, workspaceDeny []string) *Guard {
	return &Guard{Root: root, GlobalDenyPatterns: globalDeny, WorkspaceDenyGlobs: workspaceDeny}
}

// Resolve implements the §4.1 algorithm. It deliberately does not resolve
// symlinks: doing so could leak a denied target's name into the rejection
// message, and a symlink whose own name is within the workspace is allowed
// to pass here, failing later at the OS layer if its target escapes.
func (g *Guard) Resolve(inputPath string) (Result, *tool.Error) {
	normalized := normalize(inputPath)

	var absolute string
	if filepath.IsAbs(normalized) {
		absolute = filepath.Clean(normalized)
	} else {
		absolute = filepath.Clean(filepath.Join(g.Root, normalized))
	}

	relative, ok := relativize(absolute, g.Root)
	if !ok {
		return Result{}, tool.Errorf(tool.CodeForbiddenPath, "path %q escapes the workspace", inputPath).
			WithDetails(map[string]any{"path": inputPath})
	}

	if pattern, denied := g.matchDeny(relative, absolute); denied {
		return Result{}, tool.Errorf(tool.CodeForbiddenPath, "path %q matches deny pattern %q", relative, pattern).
			WithDetails(map[string]any{"path": relative, "pattern": pattern})
	}

	return Result{Absolute: absolute, Relative: relative}, nil
}

// normalize collapses "./" segments, repeated separators, and trailing
// separators without touching the filesystem or resolving symlinks.
func normalize(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "."
	}
	abs := strings.HasPrefix(p, "/")
	cleaned := filepath.ToSlash(filepath.Clean(p))
	if abs && !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// relativize reports the path of absolute relative to root, rejecting any
// result that climbs above root (a leading ".." component) or that failed
// to resolve to a relative form at all.
func relativize(absolute, root string) (string, bool) {
	rel, err := filepath.Rel(root, absolute)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", true
	}
	if rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return "", false
	}
	return rel, true
}

func (g *Guard) matchDeny(relative, absolute string) (string, bool) {
	layers := [][]string{BuiltinDenyPatterns, g.GlobalDenyPatterns, g.WorkspaceDenyGlobs}
	for _, layer := range layers {
		for _, pattern := range layer {
			if pattern == "" {
				continue
			}
			if Match(pattern, relative) {
				return pattern, true
			}
			if strings.HasPrefix(pattern, "/") && Match(strings.TrimPrefix(pattern, "/"), strings.TrimPrefix(absolute, "/")) {
				return pattern, true
			}
		}
	}
	return "", false
}
