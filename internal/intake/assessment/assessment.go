// Package assessment holds the clinical questionnaire definitions and the
// deterministic scoring rules for the BDI and PHQ-9 depression screens.
package assessment

import (
	"strconv"

	"github.com/tmsclinic/intake/internal/intake/form"
)

// Band is one severity cutoff: totals up to and including Max map to Label.
type Band struct {
	Max   int
	Label string
}

// Scale describes one assessment instrument.
type Scale struct {
	Name          string
	QuestionCount int
	// SpecialIndices marks questions whose option codes carry a letter
	// suffix (the BDI sleep and appetite items, e.g. "2b"). Only the
	// numeric prefix contributes to the score.
	SpecialIndices map[int]bool
	MaxScore       int
	Bands          []Band
	// TopLabel applies to totals above the last band's Max.
	TopLabel string
}

// BDI is the Beck Depression Inventory II: 21 questions, 0-63.
var BDI = Scale{
	Name:           "BDI-II",
	QuestionCount:  21,
	SpecialIndices: map[int]bool{15: true, 17: true},
	MaxScore:       63,
	Bands: []Band{
		{Max: 13, Label: "Minimal"},
		{Max: 19, Label: "Mild"},
		{Max: 28, Label: "Moderate"},
		{Max: 63, Label: "Severe"},
	},
	TopLabel: "Extreme",
}

// PHQ9 is the Patient Health Questionnaire-9: 9 questions, 0-27.
var PHQ9 = Scale{
	Name:          "PHQ-9",
	QuestionCount: 9,
	MaxScore:      27,
	Bands: []Band{
		{Max: 4, Label: "Minimal"},
		{Max: 9, Label: "Mild"},
		{Max: 14, Label: "Moderate"},
		{Max: 19, Label: "Moderately Severe"},
	},
	TopLabel: "Severe",
}

// ForForm returns the scale for an assessment form type, or nil for
// non-assessment forms.
func ForForm(t form.Type) *Scale {
	switch t {
	case form.TypeBDI:
		return &BDI
	case form.TypePHQ9:
		return &PHQ9
	default:
		return nil
	}
}

// TotalScore sums the selected option codes across all questions of the
// scale. Option codes on special (lettered) questions contribute their
// numeric prefix only ("2b" → 2); other questions take plain integer
// codes, and anything unparseable contributes 0. Missing responses also
// contribute 0; they should not occur once validation has passed.
func TotalScore(responses map[int]string, s Scale) int {
	total := 0
	for i := 0; i < s.QuestionCount; i++ {
		v, ok := responses[i]
		if !ok || v == "" {
			continue
		}
		if s.SpecialIndices[i] {
			total += numericPrefix(v)
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

// numericPrefix parses the leading digits of an option code. A code with
// no leading digits contributes 0.
func numericPrefix(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Severity maps a total score to the scale's ordinal severity label via
// its ascending cutoffs.
func Severity(total int, s Scale) string {
	for _, b := range s.Bands {
		if total <= b.Max {
			return b.Label
		}
	}
	return s.TopLabel
}
