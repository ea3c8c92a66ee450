package filter

import (
	"path/filepath"
	"strings"
)

// matchGlob matches name against pattern using shell-style segments
// separated by '/', where each segment is matched with path/filepath's
// '*'/'?'/'[...]' semantics and a segment that is exactly "**" matches
// zero or more path segments. This extends path/filepath.Match (which
// treats '/' as an ordinary character with no multi-segment wildcard)
// the way a .gitignore-style matcher does, following the pattern/name
// split the teacher's ignore matcher uses.
func matchGlob(pattern, name string) bool {
	return matchSegments(splitPath(pattern), splitPath(name))
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, seg []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(seg); i++ {
				if matchSegments(pat[1:], seg[i:]) {
					return true
				}
			}
			return false
		}
		if len(seg) == 0 {
			return false
		}
		ok, err := filepath.Match(pat[0], seg[0])
		if err != nil || !ok {
			return false
		}
		pat = pat[1:]
		seg = seg[1:]
	}
	return len(seg) == 0
}
