package assessments

import "strings"

// ReportAnchor is the fixed markdown heading that starts the usable part of
// a generated report. Models sometimes prepend preambles or apologies; the
// cleaner cuts everything before this heading.
const ReportAnchor = "### Overall Risk Summary"

// errorReportPrefix marks a report value that records a generation failure
// instead of a narrative. Callers check the prefix instead of an error.
const errorReportPrefix = "Error:"

// CleanReport sanitizes the raw model output into the canonical report body:
// slice from the anchor heading when present, otherwise fall back to a plain
// trim, then strip any residual code fences. Idempotent on clean input.
func CleanReport(raw string) string {
	cleaned := raw
	if i := strings.Index(raw, ReportAnchor); i >= 0 {
		cleaned = raw[i:]
	} else {
		cleaned = strings.TrimSpace(raw)
	}
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// ErrorReport wraps a generation failure message as a sentinel report value.
func ErrorReport(msg string) string {
	return errorReportPrefix + " " + msg
}

// IsErrorReport reports whether a report value is a generation-failure
// sentinel rather than a usable narrative.
func IsErrorReport(report string) bool {
	return strings.HasPrefix(report, errorReportPrefix)
}
