package daemon

import (
	"encoding/json"
	"testing"
)

func TestAuditEntryForRedactsPatchBody(t *testing.T) {
	params := json.RawMessage(`{"patchUnified":"--- a\n+++ b\n@@ -1 +1 @@\n-old\n+new\n","dryRun":false}`)
	entry := auditEntryFor("run-1", "fs.apply_patch", params, map[string]any{"added": []string{"a.txt"}}, nil, 0)

	var in map[string]any
	if err := json.Unmarshal(entry.Input.(json.RawMessage), &in); err != nil {
		t.Fatalf("unmarshal input: %v", err)
	}
	if in["patchUnified"] != "[redacted]" {
		t.Fatalf("patchUnified = %v, want redacted", in["patchUnified"])
	}
	if in["dryRun"] != false {
		t.Fatalf("dryRun = %v, want preserved", in["dryRun"])
	}
}

func TestAuditEntryForRedactsFileContent(t *testing.T) {
	result := map[string]any{"content": "c2VjcmV0", "encoding": "base64", "size": 6, "truncated": false}
	entry := auditEntryFor("run-1", "fs.read", json.RawMessage(`{"path":"secret.txt"}`), result, nil, 0)

	var out map[string]any
	if err := json.Unmarshal(entry.Output.(json.RawMessage), &out); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if out["content"] != "[redacted]" {
		t.Fatalf("content = %v, want redacted", out["content"])
	}
	if out["size"] != float64(6) {
		t.Fatalf("size = %v, want preserved", out["size"])
	}
}

func TestAuditEntryForRedactsCommitMessageAndEnv(t *testing.T) {
	commit := auditEntryFor("run-1", "vcs.commit", json.RawMessage(`{"files":["a.txt"],"message":"fixes CVE with embedded API key sk-abc123"}`), map[string]any{"sha": "abc123"}, nil, 0)
	var commitIn map[string]any
	if err := json.Unmarshal(commit.Input.(json.RawMessage), &commitIn); err != nil {
		t.Fatalf("unmarshal commit input: %v", err)
	}
	if commitIn["message"] != "[redacted]" {
		t.Fatalf("message = %v, want redacted", commitIn["message"])
	}
	if files, ok := commitIn["files"].([]any); !ok || len(files) != 1 {
		t.Fatalf("files = %v, want preserved", commitIn["files"])
	}

	run := auditEntryFor("run-1", "cmd.run", json.RawMessage(`{"command":"echo","env":{"TOKEN":"super-secret"}}`), map[string]any{"exitCode": 0}, nil, 0)
	var runIn map[string]any
	if err := json.Unmarshal(run.Input.(json.RawMessage), &runIn); err != nil {
		t.Fatalf("unmarshal cmd.run input: %v", err)
	}
	if runIn["env"] != "[redacted]" {
		t.Fatalf("env = %v, want redacted", runIn["env"])
	}
	if runIn["command"] != "echo" {
		t.Fatalf("command = %v, want preserved", runIn["command"])
	}
}

func TestAuditEntryForLeavesUnlistedToolsUntouched(t *testing.T) {
	entry := auditEntryFor("run-1", "vcs.status", json.RawMessage(`{}`), map[string]any{"branch": "main"}, nil, 0)
	if _, ok := entry.Output.(map[string]any); !ok {
		t.Fatalf("output = %T, want unmodified map", entry.Output)
	}
}
