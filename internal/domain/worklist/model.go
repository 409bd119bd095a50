package worklist

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
)

// ErrNotFound is returned when a subject has no entry in the store.
var ErrNotFound = errors.New("worklist entry not found")

// Entry is the aggregated view of one subject for one pass.
type Entry struct {
	SubjectID   string           `json:"subject_id"`
	DisplayName string           `json:"display_name,omitempty"`
	Snapshot    *vitals.Snapshot `json:"snapshot"`
	Triage      triage.Result    `json:"triage"`
	Missing     []vitals.Kind    `json:"missing"`
	LastEventAt *time.Time       `json:"last_event_at,omitempty"`
	Degraded    bool             `json:"degraded,omitempty"`
	PassID      string           `json:"pass_id"`
	RuleSet     string           `json:"rule_set"`
	EvaluatedAt time.Time        `json:"evaluated_at"`

	rules *triage.RuleSet
}

// Rules returns the rule set instance the entry was classified against.
func (e *Entry) Rules() *triage.RuleSet {
	return e.rules
}

// Name returns the display name, falling back to the subject id.
func (e *Entry) Name() string {
	if e.DisplayName != "" {
		return e.DisplayName
	}
	return e.SubjectID
}

// HasMissing reports whether any expected vital is absent.
func (e *Entry) HasMissing() bool {
	return len(e.Missing) > 0
}

// Store holds worklist entries keyed by subject id. The caller owns its
// lifetime; an entry is written at most once until Reset.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*Entry)}
}

// Get returns the entry for a subject.
func (s *Store) Get(subjectID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Has reports whether a subject already has an entry.
func (s *Store) Has(subjectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[subjectID]
	return ok
}

// PutIfAbsent stores e unless an entry for the subject already exists. It
// reports whether e was stored.
func (s *Store) PutIfAbsent(e *Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.SubjectID]; ok {
		return false
	}
	s.entries[e.SubjectID] = e
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns the entries ordered by subject id.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out
}

// Reset drops every entry so the next pass re-evaluates all subjects.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// LevelCounts tallies entries by triage level name.
func (s *Store) LevelCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.Triage.Level.String()]++
	}
	return counts
}
