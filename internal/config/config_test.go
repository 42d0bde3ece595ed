package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGlobalFromMissingFileReturnsDefault(t *testing.T) {
	cfg, err := LoadGlobalFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3847 {
		t.Fatalf("expected default port 3847, got %d", cfg.Server.Port)
	}
}

func TestLoadGlobalFromParsesWorkspaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.yaml")
	doc := `
version: 1
workspaces:
  - name: main
    path: /home/u/proj
    tier: write
    denyPatterns: ["*.secret"]
    allowVcs: true
defaultWorkspace: main
server:
  host: 127.0.0.1
  port: 4000
  transport: http
approvals:
  requireWriteApproval: true
  requireExecApproval: true
  approvalTimeoutMs: 60000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobalFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Workspaces) != 1 {
		t.Fatalf("workspaces = %d, want 1", len(cfg.Workspaces))
	}
	ws, ok := cfg.Workspace("")
	if !ok {
		t.Fatalf("expected default workspace to resolve")
	}
	if ws.Name != "main" || ws.Tier != "write" || !ws.AllowVCS {
		t.Fatalf("unexpected workspace: %+v", ws)
	}
	if cfg.Server.Port != 4000 {
		t.Fatalf("port = %d, want 4000", cfg.Server.Port)
	}
}

func TestLoadGlobalFromRejectsUnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workspaces.yaml")
	if err := os.WriteFile(path, []byte("version: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGlobalFrom(path); err == nil {
		t.Fatalf("expected an error for an unsupported version")
	}
}

func TestSaveGlobalRoundTrips(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("WARDEN_DATA_DIR", dir)

	cfg := DefaultConfig()
	cfg.Workspaces = append(cfg.Workspaces, Workspace{Name: "main", Path: "/tmp/proj", Tier: "read"})

	if err := SaveGlobal(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reloaded.Workspaces) != 1 || reloaded.Workspaces[0].Name != "main" {
		t.Fatalf("unexpected reloaded config: %+v", reloaded)
	}
}
