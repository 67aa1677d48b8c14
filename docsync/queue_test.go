package docsync

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/models"
)

func TestBackoffDelay(t *testing.T) {
	cases := []struct {
		name     string
		kind     models.BackoffType
		delayMs  int64
		attempt  int
		expected time.Duration
	}{
		{"fixed ignores attempt count", models.BackoffTypeFixed, 5000, 3, 5 * time.Second},
		{"fixed default base", models.BackoffTypeFixed, 0, 1, 5 * time.Second},
		{"exponential first attempt", models.BackoffTypeExponential, 5000, 1, 5 * time.Second},
		{"exponential second attempt", models.BackoffTypeExponential, 5000, 2, 10 * time.Second},
		{"exponential third attempt", models.BackoffTypeExponential, 5000, 3, 20 * time.Second},
		{"exponential capped at ten minutes", models.BackoffTypeExponential, 5000, 12, 10 * time.Minute},
		{"exponential default base", models.BackoffTypeExponential, 0, 2, 10 * time.Second},
		{"negative delay falls back to default", models.BackoffTypeFixed, -100, 1, 5 * time.Second},
		{"unknown kind behaves as fixed", models.BackoffType(""), 2000, 4, 2 * time.Second},
	}
	for _, tc := range cases {
		got := backoffDelay(tc.kind, tc.delayMs, tc.attempt)
		if got != tc.expected {
			t.Fatalf("%s: backoffDelay(%s, %d, %d) expected %s, got %s",
				tc.name, tc.kind, tc.delayMs, tc.attempt, tc.expected, got)
		}
	}
}
