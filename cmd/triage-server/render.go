package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ehr/triage/internal/domain/triage"
	"github.com/ehr/triage/internal/domain/vitals"
	"github.com/ehr/triage/internal/domain/worklist"
)

var levelColors = map[triage.Level]lipgloss.Color{
	triage.LevelRed:     lipgloss.Color("#FF6B6B"),
	triage.LevelAmber:   lipgloss.Color("#F5A623"),
	triage.LevelGreen:   lipgloss.Color("#5FB85F"),
	triage.LevelUnknown: lipgloss.Color("#888888"),
}

type worklistOutput struct {
	Summary worklist.Summary  `json:"summary"`
	Entries []*worklist.Entry `json:"entries"`
}

func rankOptions(locale string) ([]worklist.RankOption, error) {
	if locale == "" {
		return nil, nil
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return []worklist.RankOption{worklist.WithLocale(tag)}, nil
}

func levelCell(l triage.Level) string {
	return lipgloss.NewStyle().Bold(true).Foreground(levelColors[l]).Render(l.String())
}

// vitalCell formats the latest reading of k, or "-" when absent.
func vitalCell(snap *vitals.Snapshot, k vitals.Kind) string {
	r, ok := snap.Get(k)
	if !ok {
		return "-"
	}
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.1f", r.Value), "0"), ".")
}

func renderTable(entries []*worklist.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		Headers("SUBJECT", "LEVEL", "SYS", "DIA", "HR", "TEMP", "SPO2", "MISSING", "LAST EVENT").
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, e := range entries {
		missing := "-"
		if e.HasMissing() {
			names := make([]string, len(e.Missing))
			for i, k := range e.Missing {
				names[i] = string(k)
			}
			missing = strings.Join(names, ",")
		}
		last := "-"
		if e.LastEventAt != nil {
			last = e.LastEventAt.UTC().Format("2006-01-02 15:04")
		}
		t.Row(
			e.Name(),
			levelCell(e.Triage.Level),
			vitalCell(e.Snapshot, vitals.KindSystolic),
			vitalCell(e.Snapshot, vitals.KindDiastolic),
			vitalCell(e.Snapshot, vitals.KindHeartRate),
			vitalCell(e.Snapshot, vitals.KindTemperature),
			vitalCell(e.Snapshot, vitals.KindOxygenSaturation),
			missing,
			last,
		)
	}
	return t.String()
}

func renderSummary(s worklist.Summary, f worklist.Filter, shown int) string {
	return fmt.Sprintf("pass %s: %d subjects, %d evaluated, %d degraded, rules %s, %s; showing %d (%s)",
		s.PassID, s.Requested, s.Evaluated, s.Degraded, s.RuleSet, s.Duration.Round(time.Millisecond), shown, f)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, rs *triage.RuleSet) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rs); err != nil {
		return err
	}
	return enc.Close()
}
