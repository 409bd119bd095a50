package worklist

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
	"github.com/ehr/triage/internal/platform/metrics"
)

// Fetcher retrieves the raw observations of one subject.
type Fetcher interface {
	FetchObservations(ctx context.Context, subjectID string) ([]vitals.RawObservation, error)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, subjectID string) ([]vitals.RawObservation, error)

func (f FetchFunc) FetchObservations(ctx context.Context, subjectID string) ([]vitals.RawObservation, error) {
	return f(ctx, subjectID)
}

// Summary describes one aggregation pass.
type Summary struct {
	PassID    string        `json:"pass_id"`
	RuleSet   string        `json:"rule_set"`
	Requested int           `json:"requested"`
	Evaluated int           `json:"evaluated"`
	Cached    int           `json:"cached"`
	Degraded  int           `json:"degraded"`
	Duration  time.Duration `json:"duration"`
}

// Aggregator runs extraction, classification and completeness for many
// subjects with a fixed number of workers.
type Aggregator struct {
	logger     zerolog.Logger
	expected   []vitals.Kind
	trendLimit int
	names      func(subjectID string) string
	now        func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithExpectedKinds overrides the kinds checked for completeness.
func WithExpectedKinds(kinds []vitals.Kind) Option {
	return func(a *Aggregator) {
		if len(kinds) > 0 {
			a.expected = append([]vitals.Kind(nil), kinds...)
		}
	}
}

// WithTrendLimit caps the trend series kept per kind.
func WithTrendLimit(n int) Option {
	return func(a *Aggregator) { a.trendLimit = n }
}

// WithDisplayNames resolves a subject id to the name shown on the worklist.
func WithDisplayNames(resolve func(subjectID string) string) Option {
	return func(a *Aggregator) { a.names = resolve }
}

func NewAggregator(logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:     logger,
		expected:   vitals.DefaultExpectedKinds,
		trendLimit: vitals.DefaultTrendLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ExpectedKinds returns the kinds checked for completeness.
func (a *Aggregator) ExpectedKinds() []vitals.Kind {
	return a.expected
}

// Aggregate evaluates every subject in ids and commits one entry per subject
// to dest, creating dest when nil. Subjects that already have an entry in
// dest are not fetched again. At most concurrency fetches are in flight at
// any time. A subject whose fetch or evaluation fails gets a degraded UNKNOWN
// entry; the pass always completes with an entry for every requested id.
//
// All subjects of one call are classified against the same rules instance.
// ctx is handed to the fetcher only; the pass itself is not cancellable.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	ids []string,
	concurrency int,
	fetch Fetcher,
	rules *triage.RuleSet,
	dest *Store,
) (*Store, Summary) {
	if dest == nil {
		dest = NewStore()
	}
	start := a.now()
	subjects := dedupe(ids)
	sum := Summary{
		PassID:    uuid.New().String(),
		RuleSet:   rules.Label(),
		Requested: len(subjects),
	}

	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(subjects) {
		concurrency = len(subjects)
	}

	var (
		cursor   atomic.Int64
		cached   atomic.Int64
		degraded atomic.Int64
		wg       sync.WaitGroup
	)
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1) - 1)
				if i >= len(subjects) {
					return
				}
				id := subjects[i]
				if dest.Has(id) {
					cached.Add(1)
					metrics.ObserveCached()
					continue
				}
				entry := a.evaluate(ctx, id, fetch, rules, sum.PassID)
				if !dest.PutIfAbsent(entry) {
					cached.Add(1)
					continue
				}
				if entry.Degraded {
					degraded.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	sum.Cached = int(cached.Load())
	sum.Degraded = int(degraded.Load())
	sum.Evaluated = sum.Requested - sum.Cached
	sum.Duration = a.now().Sub(start)

	metrics.ObservePass(sum.Duration)
	metrics.SetLevelCounts(dest.LevelCounts())

	a.logger.Info().
		Str("pass_id", sum.PassID).
		Str("rule_set", sum.RuleSet).
		Int("subjects", sum.Requested).
		Int("evaluated", sum.Evaluated).
		Int("cached", sum.Cached).
		Int("degraded", sum.Degraded).
		Int("concurrency", concurrency).
		Dur("duration", sum.Duration).
		Msg("aggregation pass complete")

	return dest, sum
}

// evaluate runs the per-subject pipeline. Panics in extraction or
// classification are turned into a degraded entry like fetch errors.
func (a *Aggregator) evaluate(ctx context.Context, id string, fetch Fetcher, rules *triage.RuleSet, passID string) (entry *Entry) {
	defer func() {
		if r := recover(); r != nil {
			entry = a.degradedEntry(id, rules, passID, fmt.Errorf("panic: %v", r))
		}
	}()

	records, err := fetchInstrumented(ctx, fetch, id)
	if err != nil {
		return a.degradedEntry(id, rules, passID, err)
	}

	snap := vitals.Extract(records, vitals.WithTrendLimit(a.trendLimit))
	return &Entry{
		SubjectID:   id,
		DisplayName: a.displayName(id),
		Snapshot:    snap,
		Triage:      triage.Classify(snap, rules),
		Missing:     vitals.CheckCompleteness(snap, a.expected),
		LastEventAt: snap.LastObserved(),
		PassID:      passID,
		RuleSet:     rules.Label(),
		EvaluatedAt: a.now(),
		rules:       rules,
	}
}

func fetchInstrumented(ctx context.Context, fetch Fetcher, id string) (records []vitals.RawObservation, err error) {
	done := metrics.FetchStarted()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panic: %v", r)
		}
		if err != nil {
			done(metrics.OutcomeError)
			return
		}
		done(metrics.OutcomeSuccess)
	}()
	return fetch.FetchObservations(ctx, id)
}

func (a *Aggregator) degradedEntry(id string, rules *triage.RuleSet, passID string, cause error) *Entry {
	a.logger.Warn().Err(cause).Str("subject_id", id).Str("pass_id", passID).Msg("subject degraded")
	return &Entry{
		SubjectID:   id,
		DisplayName: a.displayName(id),
		Snapshot:    vitals.Extract(nil),
		Triage: triage.Result{
			Level:   triage.LevelUnknown,
			Reasons: []string{"unable to evaluate: " + cause.Error()},
		},
		Missing:     append([]vitals.Kind(nil), a.expected...),
		Degraded:    true,
		PassID:      passID,
		RuleSet:     rules.Label(),
		EvaluatedAt: a.now(),
		rules:       rules,
	}
}

func (a *Aggregator) displayName(id string) string {
	if a.names == nil {
		return ""
	}
	return a.names(id)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
