package prompt

import (
	"fmt"
	"strings"

	"github.com/clinovia/labrisk/internal/domain/patients"
)

// SystemPrompt pins the model's role and the exact markdown structure the
// sanitizer expects. The first required heading doubles as the cleanup anchor.
func SystemPrompt() string {
	return `You are an AI clinical decision support assistant. Your purpose is to analyze patient blood test results and provide a clear, concise risk assessment based ONLY on the provided thresholds. You must identify markers that are outside the normal range and explain the potential risks associated with them. Do not provide a medical diagnosis. The output must be in well-structured Markdown format.

Generate a report with the following markdown sections exactly as specified:

### Overall Risk Summary
(A brief, one-paragraph summary of the key findings and most significant risks based on the data.)

### Markers of Concern
(A bulleted list. For EACH marker outside the normal range, state its value, the threshold, and the specific risks it indicates. If all markers are normal, state "All markers are within the normal range.")

### Recommendations for Reviewer
(A bulleted list of general next steps a clinician might consider based on the findings.)

Do not include any text before the first heading and do not use code fences.`
}

// UserPrompt embeds the panel and the full threshold table verbatim so the
// model has no ambiguity about boundaries.
func UserPrompt(rec *patients.PatientRecord) string {
	var b strings.Builder
	b.WriteString("RISK THRESHOLDS (Strictly Adhere to These):\n")
	b.WriteString(ThresholdTable())
	b.WriteString("\nPATIENT DATA TO ANALYZE:\n")
	b.WriteString(panelLines(rec.Panel))
	return b.String()
}

// ThresholdTable renders the rule table as markdown bullets, one line per
// marker, straight from the classification source of truth.
func ThresholdTable() string {
	var b strings.Builder
	for _, r := range patients.MarkerRules {
		fmt.Fprintf(&b, "- **%s:** %s (Indicates risk for %s).\n", r.Label, r.Threshold, r.Risks)
	}
	return b.String()
}

func panelLines(p patients.Panel) string {
	var b strings.Builder
	for _, r := range patients.MarkerRules {
		v := p.Value(r.Key)
		if v == nil {
			fmt.Fprintf(&b, "- %s: not measured\n", r.Label)
			continue
		}
		fmt.Fprintf(&b, "- %s: %g %s\n", r.Label, *v, r.Unit)
	}
	return b.String()
}
