package derive

import "strings"

// ParsePolicyID finds the first "policy=VALUE" pair in the "|"-separated
// AADr, defaulting to "default" if absent. Policy is then an authoritative
// input to eta (the client's copy, if any, is opaque and non-authoritative).
func ParsePolicyID(aadr string) string {
	for _, tok := range strings.Split(aadr, "|") {
		k, v, ok := strings.Cut(tok, "=")
		if ok && k == "policy" && v != "" {
			return v
		}
	}
	return "default"
}
