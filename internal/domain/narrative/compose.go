package narrative

import (
	"strconv"
	"strings"
	"time"

	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
)

// MissingDataAction is appended whenever expected vitals are absent.
const MissingDataAction = "Recommended action: obtain the missing vitals and re-evaluate triage."

// NextActions is the fixed closing block of every report.
var NextActions = []string{
	"Review the triggered thresholds against the current clinical picture.",
	"Repeat vitals per unit protocol and escalate if the level rises.",
	"Document the review in the patient record.",
}

// Compose renders the plain-text report for one subject. Output depends only
// on its arguments: the same inputs always produce the same bytes.
func Compose(subjectLabel string, snap *vitals.Snapshot, res triage.Result, missing []vitals.Kind, rules *triage.RuleSet) string {
	var b strings.Builder

	b.WriteString("Subject: ")
	b.WriteString(subjectLabel)
	b.WriteString("\n")
	b.WriteString("Rule set: ")
	b.WriteString(rules.Label())
	b.WriteString("\n\n")

	b.WriteString("Triage level: ")
	b.WriteString(res.Level.String())
	b.WriteString("\n")
	for _, r := range res.Reasons {
		b.WriteString("  - ")
		b.WriteString(r)
		b.WriteString("\n")
	}

	b.WriteString("\nLatest vitals:\n")
	if snap.Empty() {
		b.WriteString("  none recorded\n")
	}
	for _, k := range vitals.AllKinds {
		reading, ok := snap.Get(k)
		if !ok {
			continue
		}
		b.WriteString("  ")
		b.WriteString(k.Label())
		b.WriteString(": ")
		b.WriteString(strconv.FormatFloat(reading.Value, 'f', -1, 64))
		b.WriteString(" ")
		b.WriteString(k.Unit())
		if reading.ObservedAt != nil {
			b.WriteString(" (")
			b.WriteString(reading.ObservedAt.UTC().Format(time.RFC3339))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if len(missing) == 0 {
		b.WriteString("Completeness: complete\n")
	} else {
		names := make([]string, len(missing))
		for i, k := range missing {
			names[i] = k.Label()
		}
		b.WriteString("Missing vitals: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n")
		b.WriteString(MissingDataAction)
		b.WriteString("\n")
	}

	b.WriteString("\nRecommended next actions:\n")
	for i, a := range NextActions {
		b.WriteString("  ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(a)
		b.WriteString("\n")
	}
	return b.String()
}
