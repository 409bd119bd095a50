package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels fetches that returned records.
	OutcomeSuccess = "success"
	// OutcomeError labels fetches that failed.
	OutcomeError = "error"
	// OutcomeCached labels subjects skipped because an entry already existed.
	OutcomeCached = "cached"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "triage",
			Name:      "fetches_total",
			Help:      "Subjects handled by the aggregator, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triage",
			Name:      "fetch_seconds",
			Help:      "Observation fetch latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	fetchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "triage",
			Name:      "fetches_in_flight",
			Help:      "Observation fetches currently outstanding.",
		},
	)

	passDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "triage",
			Name:      "aggregation_pass_seconds",
			Help:      "Wall time of one aggregation pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	worklistEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "triage",
			Name:      "worklist_entries",
			Help:      "Worklist entries by triage level after the last pass.",
		},
		[]string{"level"},
	)
)

// Register attaches the triage collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		fetchesTotal,
		fetchDurationSeconds,
		fetchesInFlight,
		passDurationSeconds,
		worklistEntries,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// FetchStarted marks one fetch as in flight and returns the function that
// records its completion.
func FetchStarted() func(outcome string) {
	start := time.Now()
	fetchesInFlight.Inc()
	return func(outcome string) {
		fetchesInFlight.Dec()
		fetchDurationSeconds.Observe(time.Since(start).Seconds())
		fetchesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveCached counts a subject served from the destination store.
func ObserveCached() {
	fetchesTotal.WithLabelValues(OutcomeCached).Inc()
}

// ObservePass records the duration of an aggregation pass.
func ObservePass(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	passDurationSeconds.Observe(duration.Seconds())
}

// SetLevelCounts replaces the per-level entry gauge.
func SetLevelCounts(counts map[string]int) {
	worklistEntries.Reset()
	for level, n := range counts {
		worklistEntries.WithLabelValues(level).Set(float64(n))
	}
}
