package identity

import (
	"encoding/json"
	"strings"
)

// jsonPath addresses a nested field in a decoded payload.
type jsonPath []string

func (p jsonPath) String() string { return strings.Join(p, ".") }

// Ordered extraction rules. The first rule that yields a non-empty value wins.
var (
	sessionIDRules    = []jsonPath{{"data", "otpData", "Details"}}
	verifyTokenRules  = []jsonPath{{"data", "token"}, {"token"}}
	verifyUserRules   = []jsonPath{{"data", "user"}, {"data"}, {"user"}}
	profileRules      = []jsonPath{{"data"}}
	registerUserRules = []jsonPath{{"data", "user"}}
	registerTokenRule = []jsonPath{{"data", "token"}}
)

func lookup(payload map[string]any, path jsonPath) (any, bool) {
	var cur any = payload
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstString evaluates rules in order and returns the first non-empty
// string. Numbers are accepted and rendered in their JSON form.
func firstString(payload map[string]any, rules []jsonPath) string {
	for _, rule := range rules {
		v, ok := lookup(payload, rule)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case json.Number:
			return s.String()
		}
	}
	return ""
}

// firstObject evaluates rules in order and returns the first non-empty object.
func firstObject(payload map[string]any, rules []jsonPath) Profile {
	for _, rule := range rules {
		v, ok := lookup(payload, rule)
		if !ok {
			continue
		}
		if obj, ok := v.(map[string]any); ok && len(obj) > 0 {
			return Profile(obj).Clone()
		}
	}
	return nil
}

func messageOr(payload map[string]any, fallback string) string {
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}
	return fallback
}
