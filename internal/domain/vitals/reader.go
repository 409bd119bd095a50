package vitals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Structural accessors over decoded JSON. Each returns the zero value when the
// path is missing or holds an unexpected type; none of them panic.

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]interface{})
	return v
}

func getSlice(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]interface{})
	return v
}

func getString(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}

// codings returns the coding entries of a CodeableConcept.
func codings(concept map[string]interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, c := range getSlice(concept, "coding") {
		if coding, ok := c.(map[string]interface{}); ok {
			out = append(out, coding)
		}
	}
	return out
}

// toFloat coerces a JSON number or numeric-looking string to a finite float64.
// NaN and the infinities are rejected; strconv accepts them as text.
func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// recordTime returns the best-available timestamp of an observation.
// Precedence: effectiveDateTime, effectiveInstant, effectivePeriod.start, issued.
func recordTime(obs RawObservation) *time.Time {
	candidates := []string{
		getString(obs, "effectiveDateTime"),
		getString(obs, "effectiveInstant"),
		getString(getMap(obs, "effectivePeriod"), "start"),
		getString(obs, "issued"),
	}
	for _, c := range candidates {
		if t, ok := parseTime(c); ok {
			return &t
		}
	}
	return nil
}

// valueOf reads the numeric value and unit from an element carrying a value[x].
func valueOf(elem map[string]interface{}) (float64, string, bool) {
	if q := getMap(elem, "valueQuantity"); q != nil {
		v, ok := toFloat(q["value"])
		if !ok {
			return 0, "", false
		}
		unit := getString(q, "code")
		if unit == "" {
			unit = getString(q, "unit")
		}
		return v, unit, true
	}
	if v, ok := elem["valueInteger"]; ok {
		f, ok := toFloat(v)
		return f, "", ok
	}
	if v, ok := elem["valueDecimal"]; ok {
		f, ok := toFloat(v)
		return f, "", ok
	}
	if s, ok := elem["valueString"].(string); ok {
		return parseNumericText(s)
	}
	return 0, "", false
}

// parseNumericText accepts text such as "98", "37.2 Cel" or "101.3 °F".
func parseNumericText(s string) (float64, string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, "", false
	}
	f, ok := toFloat(fields[0])
	if !ok {
		return 0, "", false
	}
	unit := ""
	if len(fields) > 1 {
		unit = strings.Join(fields[1:], " ")
	}
	return f, unit, true
}
