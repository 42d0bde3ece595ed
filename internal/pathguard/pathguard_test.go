package pathguard

import (
	"testing"

	"github.com/wardenhq/warden/internal/tool"
)

func TestResolveTraversal(t *testing.T) {
	g := New("/home/u/proj", nil, nil)
	_, err := g.Resolve("../../../etc/passwd")
	if err == nil || err.Code != tool.CodeForbiddenPath {
		t.Fatalf("expected FORBIDDEN_PATH, got %v", err)
	}
}

func TestResolveBuiltinDenyDotenv(t *testing.T) {
	g := New("/home/u/proj", nil, nil)
	_, err := g.Resolve(".env")
	if err == nil || err.Code != tool.CodeForbiddenPath {
		t.Fatalf("expected FORBIDDEN_PATH for .env, got %v", err)
	}
}

func TestResolveGitInternals(t *testing.T) {
	g := New("/home/u/proj", nil, nil)

	if _, err := g.Resolve(".git/config"); err == nil {
		t.Fatalf(".git/config should be denied")
	}
	res, err := g.Resolve(".git/hooks/pre-commit")
	if err != nil {
		t.Fatalf(".git/hooks/pre-commit should be allowed, got %v", err)
	}
	if res.Relative != ".git/hooks/pre-commit" {
		t.Fatalf("unexpected relative path %q", res.Relative)
	}
}

func TestResolveStaysUnderRoot(t *testing.T) {
	g := New("/home/u/proj", nil, nil)
	res, err := g.Resolve("src/main.go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Absolute != "/home/u/proj/src/main.go" {
		t.Fatalf("unexpected absolute: %s", res.Absolute)
	}
	if res.Relative != "src/main.go" {
		t.Fatalf("unexpected relative: %s", res.Relative)
	}
}

func TestResolveAbsoluteInputInsideRoot(t *testing.T) {
	g := New("/home/u/proj", nil, nil)
	res, err := g.Resolve("/home/u/proj/README.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Relative != "README.md" {
		t.Fatalf("unexpected relative: %s", res.Relative)
	}
}

func TestResolveAbsoluteOutsideRoot(t *testing.T) {
	g := New("/home/u/proj", nil, nil)
	_, err := g.Resolve("/etc/passwd")
	if err == nil || err.Code != tool.CodeForbiddenPath {
		t.Fatalf("expected FORBIDDEN_PATH, got %v", err)
	}
}

func TestResolveWorkspaceDenyGlob(t *testing.T) {
	g := New("/home/u/proj", []string{"**/*.log"}, []string{"build/**"})

	if _, err := g.Resolve("debug.log"); err == nil {
		t.Fatalf("global deny *.log should apply")
	}
	if _, err := g.Resolve("build/out.bin"); err == nil {
		t.Fatalf("workspace deny build/** should apply")
	}
	if _, err := g.Resolve("src/ok.go"); err != nil {
		t.Fatalf("unrelated path should be allowed: %v", err)
	}
}

func TestGlobMatchSemantics(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*.pem", "foo.pem", true},
		{"*.pem", "dir/foo.pem", false}, // '*' doesn't cross '/'
		{"**/*.pem", "dir/foo.pem", true},
		{"**/*.pem", "foo.pem", true}, // leading **/ matches depth zero
		{".git/objects/**", ".git/objects/ab/cd", true},
		{".git/objects/**", ".git/objects", true}, // trailing /** matches depth zero
		{"id_rsa*", "id_rsa.pub", true},
		{"secrets/**", "secrets/a/b/c.txt", true},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
	}
	for _, tc := range cases {
		if got := Match(tc.pattern, tc.name); got != tc.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}
