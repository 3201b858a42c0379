package querycache

import "strings"

// Key identifies one cached resource, e.g. Key{"user", id}. The first segment
// doubles as the low-cardinality metrics label.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether k starts with the given prefix, segment-wise.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, part := range prefix {
		if k[i] != part {
			return false
		}
	}
	return true
}

func (k Key) label() string {
	if len(k) == 0 {
		return "unknown"
	}
	return k[0]
}
