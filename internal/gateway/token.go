package gateway

import (
	"encoding/json"
	"strings"
)

// tokenStrategy locates the credential in a login response. Backends in
// the wild disagree on the field name, so login tries every strategy in
// order and the first non-empty string wins.
type tokenStrategy struct {
	name string
	path []string
}

var loginTokenStrategies = []tokenStrategy{
	{name: "token", path: []string{"token"}},
	{name: "access", path: []string{"access"}},
	{name: "access_token", path: []string{"access_token"}},
	{name: "key", path: []string{"key"}},
	{name: "data.token", path: []string{"data", "token"}},
}

// extractToken returns the token and the name of the strategy that found it.
func extractToken(body []byte) (token, strategy string, ok bool) {
	for _, s := range loginTokenStrategies {
		if v, found := lookupString(body, s.path); found {
			return v, s.name, true
		}
	}
	return "", "", false
}

// lookupString follows path through nested objects and reports a
// non-blank string at the end of it.
func lookupString(body []byte, path []string) (string, bool) {
	raw := json.RawMessage(body)
	for _, key := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", false
		}
		next, ok := obj[key]
		if !ok {
			return "", false
		}
		raw = next
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
