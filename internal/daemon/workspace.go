// Package daemon wires the security-and-execution kernel (C1-C7, C9) to
// the session protocol (C8): workspaces, run contexts, the tool registry,
// event fan-out, and the daemon process lifecycle.
package daemon

import (
	"fmt"
	"path/filepath"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/pathguard"
	"github.com/wardenhq/warden/internal/tool"
)

// Workspace is the runtime form of config.Workspace: an immutable,
// shared-by-reference descriptor with its path guard pre-built (§3).
type Workspace struct {
	Name     string
	Root     string
	Tier     tool.Tier
	AllowVCS bool
	Guard    *pathguard.Guard
}

// NewWorkspace builds a Workspace from its config form plus the
// process-wide global deny patterns, canonicalizing root.
func NewWorkspace(cfg config.Workspace, globalDeny []string) (*Workspace, error) {
	tier, ok := tool.ParseTier(cfg.Tier)
	if !ok {
		return nil, fmt.Errorf("workspace %q: invalid tier %q", cfg.Name, cfg.Tier)
	}

	root, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: resolve root: %w", cfg.Name, err)
	}

	return &Workspace{
		Name:     cfg.Name,
		Root:     root,
		Tier:     tier,
		AllowVCS: cfg.AllowVCS,
		Guard:    pathguard.New(root, globalDeny, cfg.DenyPatterns),
	}, nil
}

// WorkspaceSet is the immutable set of workspaces a daemon process serves,
// built once at startup from config (§3: "created at config load;
// immutable for the lifetime of a daemon process").
type WorkspaceSet struct {
	byName map[string]*Workspace
	dflt   string
}

// NewWorkspaceSet builds the set from cfg, validating name uniqueness.
func NewWorkspaceSet(cfg *config.Config) (*WorkspaceSet, error) {
	set := &WorkspaceSet{byName: make(map[string]*Workspace), dflt: cfg.DefaultWorkspace}
	for _, wcfg := range cfg.Workspaces {
		if _, exists := set.byName[wcfg.Name]; exists {
			return nil, fmt.Errorf("duplicate workspace name %q", wcfg.Name)
		}
		ws, err := NewWorkspace(wcfg, cfg.GlobalDenyPatterns)
		if err != nil {
			return nil, err
		}
		set.byName[wcfg.Name] = ws
	}
	return set, nil
}

// Resolve looks up a workspace by name, falling back to the configured
// default when name is empty.
func (s *WorkspaceSet) Resolve(name string) (*Workspace, bool) {
	if name == "" {
		name = s.dflt
	}
	ws, ok := s.byName[name]
	return ws, ok
}
