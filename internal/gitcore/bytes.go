package gitcore

import "strings"

// Shared byte and string helpers used across the parsers and readers.

// normalizeHash lowercases a hash at lookup ingress. Hashes built through
// NewHash are already lowercase; this covers raw Hash values supplied by
// callers.
func normalizeHash(h Hash) Hash {
	return Hash(strings.ToLower(string(h)))
}

// isHexString reports whether s consists solely of lowercase or uppercase
// hex digits.
func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isHexByte(s[i]) {
			return false
		}
	}
	return true
}

func isHexByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// firstLine returns the content up to the first newline, with surrounding
// whitespace trimmed.
func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
