package worklist

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehr/triage/internal/domain/narrative"
	"github.com/ehr/triage/internal/domain/triage"
)

type Service struct {
	agg         *Aggregator
	fetch       Fetcher
	rules       *triage.Holder
	store       *Store
	concurrency int

	// mu serializes passes so a rule set swap lands between them.
	mu       sync.Mutex
	subjects []string
	lastPass Summary
}

func NewService(agg *Aggregator, fetch Fetcher, rules *triage.Holder, store *Store, concurrency int, subjects []string) *Service {
	if store == nil {
		store = NewStore()
	}
	return &Service{
		agg:         agg,
		fetch:       fetch,
		rules:       rules,
		store:       store,
		concurrency: concurrency,
		subjects:    dedupe(subjects),
	}
}

// Subjects returns the ids tracked by the worklist.
func (s *Service) Subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subjects...)
}

// LastPass returns the summary of the most recent pass.
func (s *Service) LastPass() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPass
}

// Ensure evaluates tracked subjects that have no entry yet. Subjects already
// in the store are served from it; when all of them are, no pass runs and the
// previous summary is returned.
func (s *Service) Ensure(ctx context.Context) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPass.PassID != "" && s.cachedLocked() {
		return s.lastPass
	}
	return s.runLocked(ctx)
}

// Refresh starts a new pass: every entry is dropped and all tracked subjects,
// plus any in extra, are evaluated against the currently active rule set.
func (s *Service) Refresh(ctx context.Context, extra []string) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects = dedupe(append(s.subjects, extra...))
	s.store.Reset()
	return s.runLocked(ctx)
}

func (s *Service) cachedLocked() bool {
	for _, id := range s.subjects {
		if !s.store.Has(id) {
			return false
		}
	}
	return true
}

// runLocked detaches the pass from the caller's cancellation; entries land in
// a store shared by every caller.
func (s *Service) runLocked(ctx context.Context) Summary {
	ctx = context.WithoutCancel(ctx)
	_, sum := s.agg.Aggregate(ctx, s.subjects, s.concurrency, s.fetch, s.rules.Load(), s.store)
	s.lastPass = sum
	return sum
}

// List returns the ranked worklist.
func (s *Service) List(ctx context.Context, filter Filter, mode SortMode) []*Entry {
	s.Ensure(ctx)
	return Rank(s.store.Entries(), filter, mode)
}

// Get returns one subject's entry.
func (s *Service) Get(ctx context.Context, subjectID string) (*Entry, error) {
	s.Ensure(ctx)
	return s.store.Get(subjectID)
}

// Narrative renders the text report of one subject, using the rule set the
// entry was classified against.
func (s *Service) Narrative(ctx context.Context, subjectID string) (string, error) {
	e, err := s.Get(ctx, subjectID)
	if err != nil {
		return "", err
	}
	label := e.SubjectID
	if e.DisplayName != "" {
		label = fmt.Sprintf("%s (%s)", e.DisplayName, e.SubjectID)
	}
	return narrative.Compose(label, e.Snapshot, e.Triage, e.Missing, e.Rules()), nil
}
