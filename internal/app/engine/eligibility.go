package engine

import "strings"

// Matcher selects which orders' payment method this pipeline processes.
// A label matches when any configured pattern is a case-insensitive
// substring of it. An empty pattern list matches nothing, which disables
// the pipeline rather than accepting everything.
type Matcher struct {
	patterns []string
}

func NewMatcher(patterns []string) Matcher {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return Matcher{patterns: lowered}
}

func (m Matcher) Matches(methods []string) bool {
	for _, method := range methods {
		method = strings.ToLower(method)
		for _, p := range m.patterns {
			if strings.Contains(method, p) {
				return true
			}
		}
	}
	return false
}
