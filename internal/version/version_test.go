package version

import (
	"strings"
	"testing"
)

func TestPlainStripsColor(t *testing.T) {
	got := Plain()
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("Plain() kept escape sequences: %q", got)
	}
	if got != "0.1.0-dev" {
		t.Fatalf("Plain() = %q, want %q", got, "0.1.0-dev")
	}
}

func TestFingerprint(t *testing.T) {
	origCommit, origDate := GitCommit, BuildDate
	defer func() { GitCommit, BuildDate = origCommit, origDate }()

	GitCommit, BuildDate = "", ""
	if got, want := Fingerprint(), "kiln "+Plain(); got != want {
		t.Fatalf("bare Fingerprint() = %q, want %q", got, want)
	}

	GitCommit = "abc123"
	BuildDate = "2026-01-02T03:04:05Z"
	got := Fingerprint()
	for _, want := range []string{"kiln " + Plain(), "commit abc123", "built 2026-01-02T03:04:05Z"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Fingerprint() = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Fatalf("Fingerprint() kept escape sequences: %q", got)
	}
}
