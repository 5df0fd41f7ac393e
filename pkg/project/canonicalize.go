package project

import (
	"strings"
)

// CanonicalizeRelPath normalizes a user/LLM-supplied relative path the way
// §3 and §4.A require: separators become "/", a single leading "/" is
// stripped, "./" and ".\" prefixes collapse, trailing separators drop, and
// "." / ".." segments resolve without escaping above the root ("../x"
// collapses to "x" rather than erroring — the Path Resolver is responsible
// for rejecting paths that try to climb outside the project, see
// editblock.Resolve).
func CanonicalizeRelPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimSuffix(p, "/")
	if p == "." || p == "" {
		return ""
	}

	segs := strings.Split(p, "/")
	var out []string
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}
