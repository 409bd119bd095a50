package vitals

import "strings"

// LOINC codes recognized for each vital kind.
const (
	LOINCSystolic        = "8480-6"
	LOINCDiastolic       = "8462-4"
	LOINCHeartRate       = "8867-4"
	LOINCBodyTemperature = "8310-5"
	LOINCOralTemperature = "8331-1"
	LOINCSpO2            = "59408-5"
	LOINCOxygenSatArt    = "2708-6"
	LOINCBloodPressure   = "85354-9"
)

var codeTable = map[string]Kind{
	LOINCSystolic:        KindSystolic,
	LOINCDiastolic:       KindDiastolic,
	LOINCHeartRate:       KindHeartRate,
	LOINCBodyTemperature: KindTemperature,
	LOINCOralTemperature: KindTemperature,
	LOINCSpO2:            KindOxygenSaturation,
	LOINCOxygenSatArt:    KindOxygenSaturation,
}

// Checked in order; "pulse oximetry" must resolve before "pulse".
var displayPhrases = []struct {
	phrase string
	kind   Kind
}{
	{"systolic", KindSystolic},
	{"diastolic", KindDiastolic},
	{"oxygen saturation", KindOxygenSaturation},
	{"spo2", KindOxygenSaturation},
	{"pulse ox", KindOxygenSaturation},
	{"heart rate", KindHeartRate},
	{"pulse", KindHeartRate},
	{"temperature", KindTemperature},
}

// kindByCode matches any coding of the concept against the code table.
func kindByCode(concept map[string]interface{}) (Kind, bool) {
	for _, c := range codings(concept) {
		if k, ok := codeTable[getString(c, "code")]; ok {
			return k, true
		}
	}
	return "", false
}

// kindByText falls back to the concept's text and coding displays.
func kindByText(concept map[string]interface{}) (Kind, bool) {
	texts := []string{getString(concept, "text")}
	for _, c := range codings(concept) {
		texts = append(texts, getString(c, "display"))
	}
	for _, t := range texts {
		t = strings.ToLower(t)
		if t == "" {
			continue
		}
		for _, p := range displayPhrases {
			if strings.Contains(t, p.phrase) {
				return p.kind, true
			}
		}
	}
	return "", false
}

// resolveKind maps a record's own code to a kind. A blood pressure panel is
// never a reading itself: its display text names "systolic" but its values
// live in the components.
func resolveKind(concept map[string]interface{}) (Kind, bool) {
	if k, ok := kindByCode(concept); ok {
		return k, true
	}
	if isPanel(concept) {
		return "", false
	}
	return kindByText(concept)
}

func isPanel(concept map[string]interface{}) bool {
	for _, c := range codings(concept) {
		if getString(c, "code") == LOINCBloodPressure {
			return true
		}
	}
	return false
}

// normalize converts a value to the kind's canonical unit.
func normalize(k Kind, value float64, unit string) float64 {
	if k != KindTemperature {
		return value
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "[degf]", "degf", "°f", "f", "fahrenheit":
		return (value - 32) * 5 / 9
	}
	return value
}
