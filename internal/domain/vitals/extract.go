package vitals

import (
	"sort"
	"time"
)

type extractConfig struct {
	trendLimit int
}

// ExtractOption tunes Extract.
type ExtractOption func(*extractConfig)

// WithTrendLimit caps each trend series at n readings. Values below 1 keep
// the default.
func WithTrendLimit(n int) ExtractOption {
	return func(c *extractConfig) {
		if n > 0 {
			c.trendLimit = n
		}
	}
}

type datedRecord struct {
	obs RawObservation
	at  *time.Time
}

type kindReading struct {
	kind    Kind
	reading Reading
}

// Extract builds the canonical snapshot for one subject from its
// observations. Records may arrive in any order; recency is derived from each
// record's own timestamp and undated records sort last. Records that cannot be
// matched to a kind or coerced to a number are skipped.
func Extract(records []RawObservation, opts ...ExtractOption) *Snapshot {
	cfg := extractConfig{trendLimit: DefaultTrendLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	dated := make([]datedRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		dated = append(dated, datedRecord{obs: r, at: recordTime(r)})
	}
	sort.SliceStable(dated, func(i, j int) bool {
		a, b := dated[i].at, dated[j].at
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.After(*b)
	})

	snap := newSnapshot()
	newestFirst := make(map[Kind][]Reading)
	for _, d := range dated {
		for _, kr := range readingsOf(d.obs, d.at) {
			if _, seen := snap.Latest[kr.kind]; !seen {
				snap.Latest[kr.kind] = kr.reading
			}
			newestFirst[kr.kind] = append(newestFirst[kr.kind], kr.reading)
		}
	}

	for k, series := range newestFirst {
		if len(series) > cfg.trendLimit {
			series = series[:cfg.trendLimit]
		}
		trend := make([]Reading, len(series))
		for i, r := range series {
			trend[len(series)-1-i] = r
		}
		snap.Trends[k] = trend
	}
	return snap
}

// readingsOf yields every (kind, reading) pair one observation contributes:
// its own value when its code is recognized, plus each recognized component.
func readingsOf(obs RawObservation, at *time.Time) []kindReading {
	var out []kindReading

	if k, ok := resolveKind(getMap(obs, "code")); ok {
		if v, unit, ok := valueOf(obs); ok {
			out = append(out, kindReading{k, Reading{Value: normalize(k, v, unit), ObservedAt: at}})
		}
	}

	for _, c := range getSlice(obs, "component") {
		comp, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		k, ok := kindByCode(getMap(comp, "code"))
		if !ok {
			continue
		}
		if v, unit, ok := valueOf(comp); ok {
			out = append(out, kindReading{k, Reading{Value: normalize(k, v, unit), ObservedAt: at}})
		}
	}
	return out
}
