// Package form defines the intake form types and the submission payload
// shared by the validation, scoring, and orchestration layers.
package form

import (
	"fmt"
	"strconv"
	"strings"
)

// Type identifies one of the clinic's intake forms.
type Type string

const (
	TypeContact             Type = "contact"
	TypePatientDemographics Type = "patient-demographics"
	TypeMedicalHistory      Type = "medical-history"
	TypeBDI                 Type = "bdi"
	TypePHQ9                Type = "phq9"
	TypePreCertMedList      Type = "precert-med-list"
)

// All lists every form type the service accepts.
var All = []Type{
	TypeContact,
	TypePatientDemographics,
	TypeMedicalHistory,
	TypeBDI,
	TypePHQ9,
	TypePreCertMedList,
}

// ParseType converts a URL/request form identifier to a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown form type: %q", s)
}

// IsAssessment reports whether the form is a scored clinical assessment.
func (t Type) IsAssessment() bool {
	return t == TypeBDI || t == TypePHQ9
}

// String returns the wire identifier of the form type, as it appears in
// URLs and the form_type column.
func (t Type) String() string { return string(t) }

// Fields holds the raw field values of one submission attempt. Values are
// strings, booleans, nested checkbox groups, or assessment response maps,
// exactly as decoded from the request JSON.
type Fields map[string]interface{}

// String returns the trimmed string value of a field, or "" when the field
// is absent or not a string.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Bool returns the boolean value of a field, treating absence as false.
func (f Fields) Bool(key string) bool {
	v, ok := f[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Group returns a nested checkbox-group field as a code→checked map.
// Non-boolean entries are ignored.
func (f Fields) Group(key string) map[string]bool {
	out := make(map[string]bool)
	raw, ok := f[key].(map[string]interface{})
	if !ok {
		return out
	}
	for code, v := range raw {
		if b, ok := v.(bool); ok {
			out[code] = b
		}
	}
	return out
}

// Responses returns an assessment-response field as a question-index→option
// map. JSON object keys arrive as strings; keys that do not parse as
// integers are dropped.
func (f Fields) Responses(key string) map[int]string {
	out := make(map[int]string)
	raw, ok := f[key].(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[idx] = s
		}
	}
	return out
}

// Submission is one user-initiated form attempt. It is ephemeral: built
// from the request, validated, handed to the orchestrator, and discarded
// once the workflow outcome is determined.
type Submission struct {
	FormType Type              `json:"form_type"`
	Fields   Fields            `json:"fields"`
	Errors   map[string]string `json:"errors,omitempty"`
}
