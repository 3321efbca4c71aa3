package workflow

import "strings"

// Verdict is the decision extracted from review-agent output.
type Verdict int

const (
	VerdictApprove Verdict = iota
	VerdictRequestChanges
)

func (v Verdict) String() string {
	if v == VerdictRequestChanges {
		return "request changes"
	}
	return "approve"
}

// ClassifyVerdict maps free-form review text to a Verdict. Any text
// containing "request changes", in any casing, requests changes;
// everything else approves. The rule is deliberately permissive so the
// review agent stays free to phrase its comments naturally.
func ClassifyVerdict(body string) Verdict {
	if strings.Contains(strings.ToLower(body), "request changes") {
		return VerdictRequestChanges
	}
	return VerdictApprove
}
