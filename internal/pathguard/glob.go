package pathguard

import "strings"

// Match reports whether name matches a deny-glob pattern using the semantics
// fixed by §4.1: '*' matches any run of characters except '/'; '?' matches a
// single non-'/' character; '**' matches zero or more path segments
// (including the separators between them); a leading "**/" matches at any
// depth, including depth zero.
//
// No glob library in the example corpus implements this exact "**" segment
// semantics (filepath.Match has no "**" at all), so it is hand-rolled here;
// see DESIGN.md for the grounding note.
func Match(pattern, name string) bool {
	return matchSegments(splitPattern(pattern), splitPath(name))
}

func splitPattern(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchSegments recursively matches pattern segments against path segments,
// with "**" allowed to consume zero or more whole segments.
func matchSegments(pat, name []string) bool {
	if len(pat) == 0 {
		return len(name) == 0
	}

	if pat[0] == "**" {
		// "**" may consume zero segments (try rest of pattern here) or one
		// more segment and recurse with the same "**" still in play.
		if matchSegments(pat[1:], name) {
			return true
		}
		if len(name) == 0 {
			return false
		}
		return matchSegments(pat, name[1:])
	}

	if len(name) == 0 {
		return false
	}

	if !matchSegment(pat[0], name[0]) {
		return false
	}
	return matchSegments(pat[1:], name[1:])
}

// matchSegment matches a single path segment against a single glob segment
// containing '*' and '?' (but not "**", which is handled one level up).
func matchSegment(pat, seg string) bool {
	return matchSegmentRunes([]rune(pat), []rune(seg))
}

func matchSegmentRunes(pat, seg []rune) bool {
	if len(pat) == 0 {
		return len(seg) == 0
	}

	switch pat[0] {
	case '*':
		// Try consuming 0..len(seg) characters for this '*'.
		for i := 0; i <= len(seg); i++ {
			if matchSegmentRunes(pat[1:], seg[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(seg) == 0 {
			return false
		}
		return matchSegmentRunes(pat[1:], seg[1:])
	default:
		if len(seg) == 0 || seg[0] != pat[0] {
			return false
		}
		return matchSegmentRunes(pat[1:], seg[1:])
	}
}
