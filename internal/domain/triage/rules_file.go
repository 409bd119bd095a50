package triage

import (
	"bytes"
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/ehr/triage/internal/domain/vitals"
)

// ruleSetFile mirrors the on-disk YAML layout:
//
//	name: ward-7
//	version: "2"
//	cutoffs:
//	  heart-rate: {amber: 100, red: 120}
//	  oxygen-saturation: {amber: 93, red: 88}
//
// Kinds left out inherit the default cutoffs.
type ruleSetFile struct {
	Name    string                `yaml:"name"`
	Version string                `yaml:"version"`
	Cutoffs map[string]cutoffFile `yaml:"cutoffs"`
}

type cutoffFile struct {
	Amber    *float64 `yaml:"amber"`
	Red      *float64 `yaml:"red"`
	Inverted *bool    `yaml:"inverted"`
}

// ParseRuleSet decodes a YAML rule set and validates it.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var f ruleSetFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode rule set: %w", err)
	}

	rs := DefaultRuleSet()
	if f.Name != "" {
		rs.Name = f.Name
	}
	rs.Version = f.Version

	for name, c := range f.Cutoffs {
		k, ok := vitals.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown vital kind %q", name)
		}
		merged := rs.Cutoffs[k]
		if c.Amber != nil {
			merged.Amber = c.Amber
		}
		if c.Red != nil {
			merged.Red = c.Red
		}
		if c.Inverted != nil {
			merged.Inverted = *c.Inverted
		}
		rs.Cutoffs[k] = merged
	}

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule set: %w", err)
	}
	return rs, nil
}

// LoadRuleSet reads and parses a YAML rule set file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

// MarshalYAML renders the rule set in the file layout ParseRuleSet reads.
func (r *RuleSet) MarshalYAML() (interface{}, error) {
	out := ruleSetFile{Name: r.Name, Version: r.Version, Cutoffs: map[string]cutoffFile{}}
	for k, c := range r.Cutoffs {
		inv := c.Inverted
		out.Cutoffs[string(k)] = cutoffFile{Amber: c.Amber, Red: c.Red, Inverted: &inv}
	}
	return out, nil
}

// Holder publishes the active rule set. Readers take one pointer per
// aggregation pass so every subject in a pass sees the same instance.
type Holder struct {
	current atomic.Pointer[RuleSet]
}

// NewHolder returns a holder seeded with rs, or the defaults when rs is nil.
func NewHolder(rs *RuleSet) *Holder {
	if rs == nil {
		rs = DefaultRuleSet()
	}
	h := &Holder{}
	h.current.Store(rs)
	return h
}

// Load returns the active rule set.
func (h *Holder) Load() *RuleSet {
	return h.current.Load()
}

// Swap replaces the active rule set. Passes already running keep the
// instance they started with.
func (h *Holder) Swap(rs *RuleSet) {
	if rs != nil {
		h.current.Store(rs)
	}
}
