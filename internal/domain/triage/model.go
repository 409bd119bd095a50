package triage

import (
	"fmt"
	"strings"

	"github.com/ehr/triage/internal/domain/vitals"
)

// Level is the acuity of a subject. The zero value is Unknown.
type Level int

const (
	LevelUnknown Level = iota
	LevelGreen
	LevelAmber
	LevelRed
)

func (l Level) String() string {
	switch l {
	case LevelGreen:
		return "GREEN"
	case LevelAmber:
		return "AMBER"
	case LevelRed:
		return "RED"
	}
	return "UNKNOWN"
}

// ParseLevel accepts level names case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GREEN":
		return LevelGreen, nil
	case "AMBER":
		return LevelAmber, nil
	case "RED":
		return LevelRed, nil
	case "UNKNOWN":
		return LevelUnknown, nil
	}
	return LevelUnknown, fmt.Errorf("unknown triage level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Result is the outcome of classifying one snapshot.
type Result struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons"`
}

// Cutoff holds the amber and red thresholds for one vital kind. A nil
// threshold is never crossed. Inverted kinds trigger at or below the cutoff
// instead of at or above it.
type Cutoff struct {
	Amber    *float64 `json:"amber,omitempty" yaml:"amber,omitempty"`
	Red      *float64 `json:"red,omitempty" yaml:"red,omitempty"`
	Inverted bool     `json:"inverted,omitempty" yaml:"inverted,omitempty"`
}

func (c Cutoff) crossed(value, threshold float64) bool {
	if c.Inverted {
		return value <= threshold
	}
	return value >= threshold
}

func (c Cutoff) operator() string {
	if c.Inverted {
		return "≤"
	}
	return "≥"
}

// RuleSet is a named, versioned set of cutoffs. It is treated as immutable
// once handed to the classifier.
type RuleSet struct {
	Name    string                 `json:"name" yaml:"name"`
	Version string                 `json:"version" yaml:"version"`
	Cutoffs map[vitals.Kind]Cutoff `json:"cutoffs" yaml:"cutoffs"`
}

func ptr(f float64) *float64 { return &f }

// DefaultRuleSet returns the built-in early-warning thresholds.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Name:    "default",
		Version: "1",
		Cutoffs: map[vitals.Kind]Cutoff{
			vitals.KindSystolic:         {Amber: ptr(160), Red: ptr(180)},
			vitals.KindDiastolic:        {Amber: ptr(100), Red: ptr(110)},
			vitals.KindHeartRate:        {Amber: ptr(110), Red: ptr(130)},
			vitals.KindTemperature:      {Amber: ptr(38.0), Red: ptr(39.5)},
			vitals.KindOxygenSaturation: {Amber: ptr(94), Red: ptr(90), Inverted: true},
		},
	}
}

// Label returns "name vversion" for display.
func (r *RuleSet) Label() string {
	if r == nil {
		return "none"
	}
	if r.Version == "" {
		return r.Name
	}
	return r.Name + " v" + r.Version
}

// Validate reports rule sets whose red cutoff is less strict than amber.
// Classify never calls it; malformed sets are applied as configured.
func (r *RuleSet) Validate() error {
	if r == nil {
		return fmt.Errorf("rule set is nil")
	}
	if r.Name == "" {
		return fmt.Errorf("rule set name is required")
	}
	for _, k := range vitals.AllKinds {
		c, ok := r.Cutoffs[k]
		if !ok || c.Amber == nil || c.Red == nil {
			continue
		}
		if c.Inverted && *c.Red > *c.Amber {
			return fmt.Errorf("%s: red cutoff %v must be at or below amber cutoff %v", k, *c.Red, *c.Amber)
		}
		if !c.Inverted && *c.Red < *c.Amber {
			return fmt.Errorf("%s: red cutoff %v must be at or above amber cutoff %v", k, *c.Red, *c.Amber)
		}
	}
	for k := range r.Cutoffs {
		if !k.Valid() {
			return fmt.Errorf("unknown vital kind %q", k)
		}
	}
	return nil
}
