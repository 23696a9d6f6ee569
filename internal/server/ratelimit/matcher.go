package ratelimit

import "strings"

// Rule is a per-endpoint limit. Paths ending in "/" match by prefix.
type Rule struct {
	Method    string
	Path      string
	PerMinute int
	Burst     int
}

// DefaultRules returns the limits for endpoints that spend API budget.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "POST", Path: "/generate", PerMinute: 6, Burst: 2},
		{Method: "POST", Path: "/generate/stream", PerMinute: 6, Burst: 2},
		{Method: "POST", Path: "/jobs/", PerMinute: 30, Burst: 5},
	}
}

// MatchRule returns the rule for method and path, or nil. Health and
// metrics endpoints are never limited.
func MatchRule(method, path string, rules []Rule) *Rule {
	if method == "GET" && (path == "/health" || path == "/metrics") {
		return &Rule{}
	}

	for i := range rules {
		if rules[i].Method == method && rules[i].Path == path {
			return &rules[i]
		}
	}
	for i := range rules {
		r := &rules[i]
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}
