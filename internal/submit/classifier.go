// Package submit owns fire-and-forget transaction submission: bundle path
// when configured, direct endpoint otherwise, with latency accounting and
// failure classification. At-most-once; no retry, no inclusion confirmation.
package submit

import "strings"

// Classification buckets a submission failure. Expected classes are the
// routine losses of racing on a bonding curve (someone else's buy landed
// first, curve state moved); unexpected ones indicate a bug or provider
// trouble.
type Classification struct {
	Type     string `json:"type"`
	Expected bool   `json:"expected"`
	Raw      string `json:"raw"`
}

// Ordered: more specific patterns before the substrings they contain.
var errorPatterns = []struct {
	pattern  string
	code     string
	expected bool
}{
	{"seeds constraint violated", "seeds_constraint", true},
	{"incorrect program id", "incorrect_program_id", true},
	{"not authorized", "not_authorized", true},
	{"unauthorized", "not_authorized", true},
	{"accountnotinitialized", "account_not_initialized", true},
	{"account not initialized", "account_not_initialized", true},
	{"slippage", "slippage_exceeded", true},
	{"blockhash not found", "blockhash_not_found", false},
	{"insufficient funds", "insufficient_funds", false},
	{"custom", "custom_error", true},
}

// Classify maps raw error text to a failure class.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: "none", Expected: true}
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return Classification{Type: p.code, Expected: p.expected, Raw: raw}
		}
	}
	return Classification{Type: "unknown", Expected: false, Raw: raw}
}
