package worklist

import (
	"context"
	"testing"

	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
)

// ctxFetcher fails with the context's error once it is done, the way the
// HTTP client does.
func ctxFetcher(f *countingFetcher) FetchFunc {
	return func(ctx context.Context, id string) ([]vitals.RawObservation, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return f.FetchObservations(ctx, id)
	}
}

func TestService_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	f := worklistFetcher()
	svc := NewService(newTestAggregator(), ctxFetcher(f), triage.NewHolder(nil), nil, 2, []string{"p1", "p-red"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	svc.List(cancelled, AllEntries(), SortRisk)

	e, err := svc.Get(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Degraded || e.Triage.Level != triage.LevelGreen {
		t.Errorf("expected healthy GREEN entry, got %s degraded=%v reasons=%v", e.Triage.Level, e.Degraded, e.Triage.Reasons)
	}
	if sum := svc.LastPass(); sum.Degraded != 0 {
		t.Errorf("expected no degraded entries in the pass, got %+v", sum)
	}
}

func TestService_CancelledRefreshStillCompletes(t *testing.T) {
	f := worklistFetcher()
	svc := NewService(newTestAggregator(), ctxFetcher(f), triage.NewHolder(nil), nil, 2, []string{"p-red"})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	sum := svc.Refresh(cancelled, []string{"p-amber"})
	if sum.Evaluated != 2 || sum.Degraded != 0 {
		t.Errorf("expected both subjects evaluated cleanly, got %+v", sum)
	}
}

func TestService_CachedReadsKeepLastPass(t *testing.T) {
	f := worklistFetcher()
	svc := newTestService(f, "p-green", "p-red", "p-amber")

	first := svc.Ensure(context.Background())
	if first.Evaluated != 3 {
		t.Fatalf("expected 3 evaluated on the first pass, got %+v", first)
	}

	svc.List(context.Background(), AllEntries(), SortRisk)
	if _, err := svc.Get(context.Background(), "p-red"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := svc.LastPass()
	if last.PassID != first.PassID || last.Evaluated != 3 || last.Cached != 0 {
		t.Errorf("expected cached reads to keep pass %s, got %+v", first.PassID, last)
	}
	if f.totalCalls() != 3 {
		t.Errorf("expected no refetch, got %d calls", f.totalCalls())
	}
}

func TestService_EnsureEvaluatesOnlyNewSubjects(t *testing.T) {
	f := worklistFetcher()
	svc := newTestService(f, "p-green")
	first := svc.Ensure(context.Background())

	svc.mu.Lock()
	svc.subjects = append(svc.subjects, "p-red")
	svc.mu.Unlock()

	second := svc.Ensure(context.Background())
	if second.PassID == first.PassID || second.Evaluated != 1 || second.Cached != 1 {
		t.Errorf("expected a new pass evaluating only p-red, got %+v", second)
	}
}
