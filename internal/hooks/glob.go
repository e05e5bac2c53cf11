package hooks

import (
	"path"
	"strings"
)

// matchPath matches a file path against a glob. Patterns without a slash
// match the base name ("*.pem"). "**/" and "/**" match any number of
// directories. A malformed pattern never matches.
func matchPath(pattern, p string) bool {
	if pattern == "" || p == "" {
		return false
	}
	if pattern == "**" {
		return true
	}
	if !strings.Contains(pattern, "/") {
		return matchGlob(pattern, path.Base(p))
	}
	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, p)
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return matchGlob(prefix, p) || hasMatchingPrefix(prefix, p)
	}
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		return matchGlob(suffix, p) || hasMatchingSuffix(suffix, p)
	}
	if i := strings.Index(pattern, "/**/"); i >= 0 {
		prefix, suffix := pattern[:i], pattern[i+4:]
		segments := strings.Split(p, "/")
		for cut := 1; cut < len(segments); cut++ {
			if !matchGlob(prefix, strings.Join(segments[:cut], "/")) {
				continue
			}
			for rest := cut; rest < len(segments); rest++ {
				if matchGlob(suffix, strings.Join(segments[rest:], "/")) {
					return true
				}
			}
		}
	}
	return false
}

// matchGlob wraps path.Match, treating a malformed pattern as no match.
func matchGlob(pattern, s string) bool {
	ok, err := path.Match(pattern, s)
	return err == nil && ok
}

func hasMatchingPrefix(prefix, p string) bool {
	segments := strings.Split(p, "/")
	for i := 1; i < len(segments); i++ {
		if matchGlob(prefix, strings.Join(segments[:i], "/")) {
			return true
		}
	}
	return false
}

func hasMatchingSuffix(suffix, p string) bool {
	segments := strings.Split(p, "/")
	for i := 1; i < len(segments); i++ {
		if matchGlob(suffix, strings.Join(segments[i:], "/")) {
			return true
		}
	}
	return false
}

// matchCommand matches a shell command line against a wildcard pattern where
// '*' spans any characters (slashes and spaces included) and '?' matches one
// rune. Surrounding whitespace on the command is ignored.
func matchCommand(pattern, command string) bool {
	if pattern == "" {
		return false
	}
	p := []rune(pattern)
	s := []rune(strings.TrimSpace(command))

	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
