package vcsops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// testRepo wraps a temp git repository for exercising vcsops against a
// real git binary, in the style of the upstream git package's own fixtures.
type testRepo struct {
	t   *testing.T
	dir string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	r := &testRepo{t: t, dir: dir}
	r.run("init")
	r.run("config", "user.email", "warden@test.local")
	r.run("config", "user.name", "Warden Test")
	return r
}

func (r *testRepo) run(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func (r *testRepo) writeFile(name, content string) {
	r.t.Helper()
	path := filepath.Join(r.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatal(err)
	}
}

func (r *testRepo) commitAll(msg string) {
	r.t.Helper()
	r.run("add", "-A")
	r.run("commit", "-m", msg)
}

func TestStatusReportsUntrackedAndModified(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\n")
	repo.commitAll("initial")
	repo.writeFile("a.txt", "two\n")
	repo.writeFile("b.txt", "new\n")

	ops := New(repo.dir)
	res, tErr := ops.Status(context.Background())
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}

	byPath := map[string]string{}
	for _, f := range res.Files {
		byPath[f.Path] = f.Status
	}
	if byPath["a.txt"] != "modified" {
		t.Fatalf("a.txt status = %q, want modified", byPath["a.txt"])
	}
	if byPath["b.txt"] != "untracked" {
		t.Fatalf("b.txt status = %q, want untracked", byPath["b.txt"])
	}
}

func TestStatusNoUpstreamIsNotAnError(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\n")
	repo.commitAll("initial")

	ops := New(repo.dir)
	res, tErr := ops.Status(context.Background())
	if tErr != nil {
		t.Fatalf("missing upstream must not be an error: %v", tErr)
	}
	if res.Ahead != 0 || res.Behind != 0 {
		t.Fatalf("expected zero ahead/behind without upstream, got %+v", res)
	}
}

func TestDiffReturnsSummary(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\ntwo\n")
	repo.commitAll("initial")
	repo.writeFile("a.txt", "one\ntwo\nthree\n")

	ops := New(repo.dir)
	res, tErr := ops.Diff(context.Background(), false, "")
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.FilesChanged != 1 {
		t.Fatalf("filesChanged = %d, want 1", res.FilesChanged)
	}
	if res.Insertions == 0 {
		t.Fatalf("expected at least one insertion")
	}
}

func TestCheckoutCreatesBranch(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\n")
	repo.commitAll("initial")

	ops := New(repo.dir)
	res, tErr := ops.Checkout(context.Background(), "feature/x", true)
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.PreviousBranch == "" {
		t.Fatalf("expected a previous branch to be recorded")
	}
	if res.Branch != "feature/x" {
		t.Fatalf("branch = %q, want feature/x", res.Branch)
	}
}

func TestCommitStagesAndCommits(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\n")
	repo.commitAll("initial")
	repo.writeFile("a.txt", "one\ntwo\n")

	ops := New(repo.dir)
	res, tErr := ops.Commit(context.Background(), nil, "add second line")
	if tErr != nil {
		t.Fatalf("unexpected error: %v", tErr)
	}
	if res.SHA == "" {
		t.Fatalf("expected a commit sha")
	}
	if res.FilesChanged != 1 {
		t.Fatalf("filesChanged = %d, want 1", res.FilesChanged)
	}
}

func TestCommitNothingToCommit(t *testing.T) {
	repo := newTestRepo(t)
	repo.writeFile("a.txt", "one\n")
	repo.commitAll("initial")

	ops := New(repo.dir)
	_, tErr := ops.Commit(context.Background(), nil, "no-op")
	if tErr == nil {
		t.Fatalf("expected VCS_ERROR on an empty commit")
	}
	if tErr.Message != "nothing to commit" {
		t.Fatalf("message = %q, want exact reason %q", tErr.Message, "nothing to commit")
	}
}
