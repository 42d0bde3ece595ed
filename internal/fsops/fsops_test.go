package fsops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/wardenhq/warden/internal/pathguard"
)

func newTestOps(t *testing.T) (*Ops, string) {
	t.Helper()
	root := t.TempDir()
	guard := pathguard.New(root, nil, nil)
	return New(guard), root
}

func TestListNonRecursive(t *testing.T) {
	ops, root := newTestOps(t)
	mustWrite(t, root, "a.txt", "hello")
	mustWrite(t, root, "b.txt", "world")
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	res, tErr := ops.List(".", false, 0)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if len(res.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(res.Entries))
	}
}

func TestListSkipsDeniedEntriesSilently(t *testing.T) {
	ops, root := newTestOps(t)
	mustWrite(t, root, "a.txt", "hello")
	mustWrite(t, root, ".env", "SECRET=1")

	res, tErr := ops.List(".", false, 0)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if len(res.Entries) != 1 || res.Entries[0].RelativePath != "a.txt" {
		t.Fatalf("expected only a.txt, got %+v", res.Entries)
	}
}

func TestListRecursiveRespectsDepth(t *testing.T) {
	ops, root := newTestOps(t)
	deep := filepath.Join(root, "one", "two", "three")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, deep, "leaf.txt", "x")

	res, tErr := ops.List(".", true, 2)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	for _, e := range res.Entries {
		if e.RelativePath == "one/two/three/leaf.txt" {
			t.Fatalf("leaf.txt should be beyond the depth cap: %+v", res.Entries)
		}
	}
}

func TestListRejectsNonDirectory(t *testing.T) {
	ops, root := newTestOps(t)
	mustWrite(t, root, "a.txt", "hello")

	_, tErr := ops.List("a.txt", false, 0)
	if tErr == nil {
		t.Fatalf("expected an error listing a non-directory")
	}
}

func TestReadUTF8(t *testing.T) {
	ops, root := newTestOps(t)
	mustWrite(t, root, "a.txt", "hello world")

	res, tErr := ops.Read("a.txt", 0, 0)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.Encoding != "utf8" || res.Content != "hello world" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Truncated {
		t.Fatalf("did not expect truncation")
	}
}

func TestReadBinaryFallsBackToBase64(t *testing.T) {
	ops, root := newTestOps(t)
	binPath := filepath.Join(root, "bin.dat")
	if err := os.WriteFile(binPath, []byte{0xff, 0xfe, 0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}

	res, tErr := ops.Read("bin.dat", 0, 0)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.Encoding != "base64" {
		t.Fatalf("encoding = %q, want base64", res.Encoding)
	}
}

func TestReadReportsTruncation(t *testing.T) {
	ops, root := newTestOps(t)
	mustWrite(t, root, "a.txt", "0123456789")

	res, tErr := ops.Read("a.txt", 0, 4)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.Content != "0123" {
		t.Fatalf("content = %q, want 0123", res.Content)
	}
	if !res.Truncated {
		t.Fatalf("expected truncated = true")
	}
	if res.Size != 10 {
		t.Fatalf("size = %d, want 10", res.Size)
	}
}

func TestApplyPatchDryRunDoesNotWrite(t *testing.T) {
	ops, root := newTestOps(t)
	initGitRepo(t, root)
	mustWrite(t, root, "a.txt", "one\n")
	gitCommitAll(t, root, "initial")

	diff := "diff --git a/a.txt b/a.txt\n--- a/a.txt\n+++ b/a.txt\n@@ -1 +1 @@\n-one\n+two\n"
	res, tErr := ops.ApplyPatch(context.Background(), diff, true)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if len(res.Modified) != 1 || res.Modified[0] != "a.txt" {
		t.Fatalf("unexpected stat: %+v", res)
	}

	content, err := os.ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "one\n" {
		t.Fatalf("dry run must not modify the file, got %q", content)
	}
}

func TestApplyPatchRejectsDeniedPath(t *testing.T) {
	ops, root := newTestOps(t)
	initGitRepo(t, root)
	mustWrite(t, root, ".env", "SECRET=1\n")
	gitCommitAll(t, root, "initial")

	diff := "diff --git a/.env b/.env\n--- a/.env\n+++ b/.env\n@@ -1 +1 @@\n-SECRET=1\n+SECRET=2\n"
	_, tErr := ops.ApplyPatch(context.Background(), diff, false)
	if tErr == nil || tErr.Code != "FORBIDDEN_PATH" {
		t.Fatalf("expected FORBIDDEN_PATH, got %+v", tErr)
	}
}

func mustWrite(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "warden@test.local")
	runGit(t, dir, "config", "user.name", "Warden Test")
}

func gitCommitAll(t *testing.T, dir, msg string) {
	t.Helper()
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-m", msg)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}
