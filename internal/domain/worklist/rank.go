package worklist

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ehr/triage/internal/domain/triage"
)

// FilterKind selects which entries a Filter keeps.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterLevel
	FilterMissing
)

// Filter is a worklist predicate.
type Filter struct {
	Kind  FilterKind
	Level triage.Level
}

// AllEntries keeps every entry.
func AllEntries() Filter { return Filter{Kind: FilterAll} }

// AtLevel keeps entries whose triage level equals l.
func AtLevel(l triage.Level) Filter { return Filter{Kind: FilterLevel, Level: l} }

// WithMissingData keeps entries with at least one missing vital.
func WithMissingData() Filter { return Filter{Kind: FilterMissing} }

func (f Filter) keep(e *Entry) bool {
	switch f.Kind {
	case FilterLevel:
		return e.Triage.Level == f.Level
	case FilterMissing:
		return e.HasMissing()
	}
	return true
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterLevel:
		return strings.ToLower(f.Level.String())
	case FilterMissing:
		return "missing"
	}
	return "all"
}

// ParseFilter accepts "all", "missing" or a triage level name.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return AllEntries(), nil
	case "missing":
		return WithMissingData(), nil
	}
	l, err := triage.ParseLevel(s)
	if err != nil {
		return Filter{}, fmt.Errorf("unknown filter %q", s)
	}
	return AtLevel(l), nil
}

// SortMode orders the worklist.
type SortMode string

const (
	SortRisk   SortMode = "risk"
	SortRecent SortMode = "recent"
	SortName   SortMode = "name"
)

// ParseSortMode defaults to risk ordering for an empty string.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SortRisk, nil
	case SortRisk, SortRecent, SortName:
		return m, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

type rankConfig struct {
	locale language.Tag
}

// RankOption tunes Rank.
type RankOption func(*rankConfig)

// WithLocale sets the collation locale used for name ordering.
func WithLocale(tag language.Tag) RankOption {
	return func(c *rankConfig) { c.locale = tag }
}

// Rank filters entries and sorts them by mode. The input slice is left
// untouched and ties keep their input order.
//
//	risk:   RED, AMBER, GREEN, UNKNOWN; within a level, missing data first
//	recent: newest LastEventAt first, undated last
//	name:   collated display name ascending
func Rank(entries []*Entry, filter Filter, mode SortMode, opts ...RankOption) []*Entry {
	cfg := rankConfig{locale: language.English}
	for _, opt := range opts {
		opt(&cfg)
	}

	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e != nil && filter.keep(e) {
			out = append(out, e)
		}
	}

	switch mode {
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].LastEventAt, out[j].LastEventAt
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return a.After(*b)
		})
	case SortName:
		col := collate.New(cfg.locale)
		sort.SliceStable(out, func(i, j int) bool {
			return col.CompareString(out[i].Name(), out[j].Name()) < 0
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.Triage.Level != b.Triage.Level {
				return a.Triage.Level > b.Triage.Level
			}
			return a.HasMissing() && !b.HasMissing()
		})
	}
	return out
}
