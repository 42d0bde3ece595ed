// Package cmdguard implements C2: deciding whether a proposed subprocess is
// safe to spawn, by matching the reconstituted command line against a
// layered set of deny/allow regexes.
package cmdguard

import (
	"regexp"
	"strings"
	"sync"
)

// Decision is the outcome of Validate.
type Decision struct {
	Allowed bool
	Reason  string
	Pattern string
}

// alwaysDenyPatterns are built-in and non-overridable (§4.2 step 1).
var alwaysDenyPatterns = []string{
	`\brm\s+-rf\s+/\s*$`,
	`\brm\s+-rf\s+~`,
	`\brm\s+--no-preserve-root\b`,
	`\bmkfs(\.\w+)?\b`,
	`\bdd\b.*\bof=/dev/`,
	`\bcurl\b.*-d\s*@`,
	`\bwget\b.*--post-file`,
	`\bscp\b.*:.*:`,
	`\bscp\b\s+\S+\s+\S*@\S+:`,
	`\brsync\b.*\S+@\S+:`,
	`\bsudo\b`,
	`\bsu\b(\s|$)`,
	`\bdoas\b`,
	`\bcrontab\b`,
	`\bat\s+\d`,
	`\bsystemctl\b\s+(start|stop|restart|enable|disable)\b`,
	`\bservice\b\s+\S+\s+(start|stop|restart)\b`,
	`\blaunchctl\b\s+(load|unload|kickstart)\b`,
	`\bapt(-get)?\b\s+(install|remove|purge)\b`,
	`\byum\b\s+(install|remove)\b`,
	`\bdnf\b\s+(install|remove)\b`,
	`\bbrew\b\s+(install|uninstall|remove)\b`,
	`;\s*sh\b`,
	`\|\s*sh\b`,
	"`[^`]*`",
	`\$\([^)]*\)`,
	`\bexport\s+\w+=`,
	`\benv\s+\w+=`,
	`\b(python3?|perl|ruby|node)\b\s+(-c|-e)\b.*\b(os|subprocess|socket|child_process|require\(['"]child_process)\b`,
}

// defaultAllowPatterns is the built-in default-allow layer (§4.2 step 4):
// version flags, read-only package-manager subcommands, common build/test
// runners, linters/formatters/type checkers, read-only VCS subcommands, and
// a small set of read-only file viewers.
var defaultAllowPatterns = []string{
	`^\S+\s+(--version|-V|-v|version)\s*$`,
	`^npm\s+(ls|list|outdated|view|info)\b`,
	`^(pip|pip3)\s+(list|show|freeze)\b`,
	`^(go)\s+(build|test|vet|fmt|list|doc|env)\b`,
	`^(go)\s+run\b`,
	`^(cargo)\s+(build|test|check|clippy|fmt)\b`,
	`^(npm|yarn|pnpm)\s+(run|test|build)\b`,
	`^(make)\b`,
	`^(pytest|jest|mocha|rspec)\b`,
	`^(golangci-lint|eslint|prettier|black|ruff|flake8|shellcheck)\b`,
	`^(mypy|tsc|pyright)\b`,
	`^git\s+(status|log|diff|show|branch|tag|remote|ls-files)\b`,
	`^(ls|cat|head|tail|wc|grep|rg|fd|bat)\b`,
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile("(?i)"+p))
	}
	return out
}

var (
	compileOnce     sync.Once
	compiledDeny    []*regexp.Regexp
	compiledAllow   []*regexp.Regexp
)

func builtins() ([]*regexp.Regexp, []*regexp.Regexp) {
	compileOnce.Do(func() {
		compiledDeny = compileAll(alwaysDenyPatterns)
		compiledAllow = compileAll(defaultAllowPatterns)
	})
	return compiledDeny, compiledAllow
}

// compileUser compiles a list of user-supplied regex strings, silently
// skipping any that fail to compile (§4.2: "Invalid user-supplied regexes
// are silently skipped").
func compileUser(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

// Validate implements the §4.2 decision order. command and args are
// reconstituted into a single line for matching.
func Validate(command string, args []string, userAllow, userDeny []string) Decision {
	line := command
	if len(args) > 0 {
		line = command + " " + strings.Join(args, " ")
	}

	builtinDeny, builtinAllow := builtins()

	for _, re := range builtinDeny {
		if re.MatchString(line) {
			return Decision{Allowed: false, Reason: "matches built-in deny pattern", Pattern: re.String()}
		}
	}

	for _, re := range compileUser(userDeny) {
		if re.MatchString(line) {
			return Decision{Allowed: false, Reason: "matches user deny pattern", Pattern: re.String()}
		}
	}

	for _, re := range compileUser(userAllow) {
		if re.MatchString(line) {
			return Decision{Allowed: true, Reason: "matches user allow pattern", Pattern: re.String()}
		}
	}

	for _, re := range builtinAllow {
		if re.MatchString(line) {
			return Decision{Allowed: true, Reason: "matches built-in default allow pattern", Pattern: re.String()}
		}
	}

	return Decision{Allowed: false, Reason: "not in allowlist"}
}
