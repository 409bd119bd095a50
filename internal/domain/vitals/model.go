package vitals

import (
	"time"
)

// RawObservation is a decoded FHIR-like Observation. Shapes vary by source, so
// it is read structurally rather than unmarshalled into a fixed struct.
type RawObservation = map[string]interface{}

// Kind identifies one canonical vital sign.
type Kind string

const (
	KindSystolic         Kind = "bp-systolic"
	KindDiastolic        Kind = "bp-diastolic"
	KindHeartRate        Kind = "heart-rate"
	KindTemperature      Kind = "temperature"
	KindOxygenSaturation Kind = "oxygen-saturation"
)

// AllKinds lists every vital kind in evaluation order.
var AllKinds = []Kind{
	KindSystolic,
	KindDiastolic,
	KindHeartRate,
	KindTemperature,
	KindOxygenSaturation,
}

// DefaultExpectedKinds is the set a snapshot is expected to carry for a
// complete set of vitals. Diastolic rides along with systolic and is not
// required on its own.
var DefaultExpectedKinds = []Kind{
	KindSystolic,
	KindHeartRate,
	KindTemperature,
	KindOxygenSaturation,
}

// DefaultTrendLimit caps the per-kind trend series.
const DefaultTrendLimit = 12

// Label returns the human-readable name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindSystolic:
		return "Systolic blood pressure"
	case KindDiastolic:
		return "Diastolic blood pressure"
	case KindHeartRate:
		return "Heart rate"
	case KindTemperature:
		return "Temperature"
	case KindOxygenSaturation:
		return "Oxygen saturation"
	}
	return string(k)
}

// Unit returns the canonical UCUM unit readings of this kind are stored in.
func (k Kind) Unit() string {
	switch k {
	case KindSystolic, KindDiastolic:
		return "mm[Hg]"
	case KindHeartRate:
		return "/min"
	case KindTemperature:
		return "Cel"
	case KindOxygenSaturation:
		return "%"
	}
	return ""
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind resolves a kind name, returning false for unknown names.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}

// Reading is one numeric value of a vital kind.
type Reading struct {
	Value      float64    `json:"value"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// Snapshot is the canonical vitals view of one subject. It is built by
// Extract and must not be modified afterwards; re-extraction replaces it.
type Snapshot struct {
	Latest map[Kind]Reading   `json:"latest"`
	Trends map[Kind][]Reading `json:"trends,omitempty"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Latest: make(map[Kind]Reading),
		Trends: make(map[Kind][]Reading),
	}
}

// Get returns the latest reading for k.
func (s *Snapshot) Get(k Kind) (Reading, bool) {
	if s == nil {
		return Reading{}, false
	}
	r, ok := s.Latest[k]
	return r, ok
}

// Has reports whether the snapshot carries a value for k.
func (s *Snapshot) Has(k Kind) bool {
	_, ok := s.Get(k)
	return ok
}

// Empty reports whether no vital is present.
func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Latest) == 0
}

// Trend returns the oldest-first series for k.
func (s *Snapshot) Trend(k Kind) []Reading {
	if s == nil {
		return nil
	}
	return s.Trends[k]
}

// LastObserved returns the most recent timestamp among the latest readings,
// or nil when every reading is undated.
func (s *Snapshot) LastObserved() *time.Time {
	if s == nil {
		return nil
	}
	var last *time.Time
	for _, r := range s.Latest {
		if r.ObservedAt == nil {
			continue
		}
		if last == nil || r.ObservedAt.After(*last) {
			t := *r.ObservedAt
			last = &t
		}
	}
	return last
}
