package backend

import (
	"path"
	"strings"
)

// HasMagic reports whether s contains glob metacharacters.
func HasMagic(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// GlobRoot returns the longest leading directory of pattern without metacharacters.
func GlobRoot(pattern string) string {
	parts := strings.Split(pattern, "/")
	var root []string
	for _, p := range parts[:len(parts)-1] {
		if HasMagic(p) {
			break
		}
		root = append(root, p)
	}
	r := strings.Join(root, "/")
	if r == "" && strings.HasPrefix(pattern, "/") {
		return "/"
	}
	return r
}

// MatchGlob matches a slash-separated name against pattern. Each segment follows
// path.Match, and a "**" segment matches any number of segments, including none.
func MatchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
