package version

import (
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// Version information for the kiln CLI.
// These variables can be overridden at build time via -ldflags.

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the CLI.
	Version = versionMajorColor.Sprint("0") + "." + versionMinorColor.Sprint("1") + "." + versionPatchColor.Sprint("0") + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// GitMessage is an optional git commit message.
	GitMessage = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var ansiSeq = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Plain returns Version with terminal color sequences stripped. Anything
// that leaves the terminal, snapshot payloads and JSON output included,
// embeds this form.
func Plain() string {
	return ansiSeq.ReplaceAllString(Version, "")
}

// Fingerprint renders every recorded build detail on one line, so an
// artifact written by one build names that build exactly.
func Fingerprint() string {
	parts := []string{"kiln " + Plain()}
	if c := strings.TrimSpace(GitCommit); c != "" {
		parts = append(parts, "commit "+c)
	}
	if d := strings.TrimSpace(BuildDate); d != "" {
		parts = append(parts, "built "+d)
	}
	return strings.Join(parts, ", ")
}
