package patch

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wardenhq/warden/internal/pathguard"
)

func TestExtractPathsRoundTrip(t *testing.T) {
	diff := "diff --git a/src/main b/src/main\n--- a/src/main\n+++ b/src/main\n@@ -1 +1 @@\n-old\n+new\n"
	got := ExtractPaths(diff)
	want := []string{"src/main"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPathsIgnoresDevNull(t *testing.T) {
	diff := "diff --git a/new.txt b/new.txt\n--- /dev/null\n+++ b/new.txt\n@@ -0,0 +1 @@\n+hello\n"
	got := ExtractPaths(diff)
	want := []string{"new.txt"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPathsMultiFile(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/one.go b/one.go",
		"--- a/one.go",
		"+++ b/one.go",
		"@@ -1 +1 @@",
		"-a",
		"+b",
		"diff --git a/two.go b/two.go",
		"--- a/two.go",
		"+++ b/two.go",
		"@@ -1 +1 @@",
		"-c",
		"+d",
		"",
	}, "\n")
	got := ExtractPaths(diff)
	want := []string{"one.go", "two.go"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyStatAddedRemovedModified(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/new.txt b/new.txt",
		"--- /dev/null",
		"+++ b/new.txt",
		"@@ -0,0 +1 @@",
		"+hello",
		"diff --git a/gone.txt b/gone.txt",
		"--- a/gone.txt",
		"+++ /dev/null",
		"@@ -1 +0,0 @@",
		"-bye",
		"diff --git a/edit.txt b/edit.txt",
		"--- a/edit.txt",
		"+++ b/edit.txt",
		"@@ -1 +1 @@",
		"-old",
		"+new",
		"",
	}, "\n")

	stat := ClassifyStat(diff)
	if diff := cmp.Diff([]string{"new.txt"}, stat.Added); diff != "" {
		t.Fatalf("added mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"gone.txt"}, stat.Removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"edit.txt"}, stat.Modified); diff != "" {
		t.Fatalf("modified mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateRejectsDeniedPath(t *testing.T) {
	guard := pathguard.New("/repo", nil, nil)
	diff := "diff --git a/.env b/.env\n--- a/.env\n+++ b/.env\n@@ -1 +1 @@\n-a\n+b\n"
	_, err := Validate(diff, guard)
	if err == nil {
		t.Fatalf("expected rejection for denied path")
	}
}

func TestValidateAllowsCleanPatch(t *testing.T) {
	guard := pathguard.New("/repo", nil, nil)
	diff := "diff --git a/src/main.go b/src/main.go\n--- a/src/main.go\n+++ b/src/main.go\n@@ -1 +1 @@\n-a\n+b\n"
	paths, err := Validate(diff, guard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 1 || paths[0] != "src/main.go" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}
