package triage

import (
	"fmt"
	"strconv"

	"github.com/ehr/triage/internal/domain/vitals"
)

const (
	ReasonNoVitals   = "no vitals available"
	ReasonNoTriggers = "no threshold triggers"
)

// Classify applies the rule set to the snapshot. Kinds are evaluated in
// vitals.AllKinds order and the level only ever rises during one evaluation.
func Classify(snap *vitals.Snapshot, rules *RuleSet) Result {
	if snap.Empty() {
		return Result{Level: LevelUnknown, Reasons: []string{ReasonNoVitals}}
	}

	res := Result{Level: LevelGreen}
	for _, k := range vitals.AllKinds {
		reading, ok := snap.Get(k)
		if !ok || rules == nil {
			continue
		}
		cutoff, ok := rules.Cutoffs[k]
		if !ok {
			continue
		}

		switch {
		case cutoff.Red != nil && cutoff.crossed(reading.Value, *cutoff.Red):
			res.raise(LevelRed, reason(k, reading.Value, cutoff, "red", *cutoff.Red))
		case cutoff.Amber != nil && cutoff.crossed(reading.Value, *cutoff.Amber):
			res.raise(LevelAmber, reason(k, reading.Value, cutoff, "amber", *cutoff.Amber))
		}
	}

	if len(res.Reasons) == 0 {
		res.Reasons = []string{ReasonNoTriggers}
	}
	return res
}

func (r *Result) raise(to Level, why string) {
	r.Reasons = append(r.Reasons, why)
	if to > r.Level {
		r.Level = to
	}
}

func reason(k vitals.Kind, value float64, c Cutoff, band string, threshold float64) string {
	return fmt.Sprintf("%s %s %s %s cutoff %s",
		k.Label(), formatValue(value), c.operator(), band, formatValue(threshold))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
