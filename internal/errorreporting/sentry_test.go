package errorreporting

import (
	"strings"
	"testing"
)

func TestScrubPII(t *testing.T) {
	cases := []struct {
		name  string
		input string
		leak  string
	}{
		{"email", "customer jane@example.com complained", "jane@example.com"},
		{"bearer token", "auth failed: Bearer abcdefghij1234567890XYZt", "abcdefghij1234567890XYZt"},
		{"api key", `api_key="sk_live_abcdef1234567890"`, "sk_live_abcdef1234567890"},
		{"ip address", "request from 203.0.113.9 rejected", "203.0.113.9"},
		{"card number", "card 4242 4242 4242 4242 declined", "4242 4242 4242 4242"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := scrubPII(tc.input)
			if strings.Contains(got, tc.leak) {
				t.Errorf("PII leaked through scrubbing: %q", got)
			}
			if !strings.Contains(got, "[REDACTED]") {
				t.Errorf("expected redaction marker in %q", got)
			}
		})
	}
}

func TestScrubPII_LeavesCleanTextAlone(t *testing.T) {
	input := "cache flush failed for collection admin_logs"
	if got := scrubPII(input); got != input {
		t.Errorf("clean text was mangled: %q", got)
	}
}
