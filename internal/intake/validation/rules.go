package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmsclinic/intake/internal/intake/assessment"
	"github.com/tmsclinic/intake/internal/intake/form"
)

// CheckFunc runs one check against a named field of a submission.
type CheckFunc func(f form.Fields, field, label string) *FieldError

// Rule binds a field to its user-facing label and an ordered list of
// checks. The first failing check supplies the field's error message;
// later rules still run, so the caller gets every invalid field at once.
type Rule struct {
	Field  string
	Label  string
	Checks []CheckFunc
}

// Result aggregates a full-form validation pass.
type Result struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors,omitempty"`
	// First is the first invalid field in rule order; clients scroll to it.
	First string `json:"first_invalid,omitempty"`
}

// -- check adapters --

func required() CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		return Required(f.String(field), label)
	}
}

func email(rejectDisposable bool) CheckFunc {
	return func(f form.Fields, field, _ string) *FieldError {
		return Email(f.String(field), rejectDisposable)
	}
}

func phone() CheckFunc {
	return func(f form.Fields, field, _ string) *FieldError {
		return Phone(f.String(field))
	}
}

func date() CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		return Date(f.String(field), label)
	}
}

func dateOfBirth() CheckFunc {
	return func(f form.Fields, field, _ string) *FieldError {
		return DateOfBirth(f.String(field))
	}
}

func futureDate() CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		return FutureDate(f.String(field), label)
	}
}

func checkboxGroup() CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		return CheckboxGroup(f.Group(field), label)
	}
}

func knownCodes(known func(string) bool) CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		return KnownCodes(f.Group(field), known, label)
	}
}

func responsesComplete(totalQuestions int) CheckFunc {
	return func(f form.Fields, field, _ string) *FieldError {
		return AssessmentResponses(f.Responses(field), totalQuestions).Err
	}
}

// doseIfPresent validates every non-empty "<field>.<code>" dose string in
// the nested dose map. Empty doses are allowed; malformed ones and doses
// keyed by an unrecognised medication code are not.
func doseIfPresent(known func(string) bool) CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		raw, ok := f[field].(map[string]interface{})
		if !ok {
			return nil
		}
		codes := make([]string, 0, len(raw))
		for code := range raw {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			if !known(code) {
				return &FieldError{InvalidFormat, fmt.Sprintf("%q is not a recognised %s code", code, label)}
			}
			s, ok := raw[code].(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			if err := Dose(s); err != nil {
				return &FieldError{err.Code, fmt.Sprintf("Dose for %s: %s", code, err.Message)}
			}
		}
		return nil
	}
}

// optional wraps a check so it only runs when the field is non-empty.
func optional(c CheckFunc) CheckFunc {
	return func(f form.Fields, field, label string) *FieldError {
		if f.String(field) == "" {
			return nil
		}
		return c(f, field, label)
	}
}

// formRules is the declarative rule table: one entry per form type,
// replacing the per-screen validation hooks the mobile client repeated.
var formRules = map[form.Type][]Rule{
	form.TypeContact: {
		{Field: "name", Label: "Name", Checks: []CheckFunc{required()}},
		{Field: "email", Label: "Email", Checks: []CheckFunc{required(), email(false)}},
		{Field: "phone", Label: "Phone", Checks: []CheckFunc{optional(phone())}},
		{Field: "date", Label: "Preferred date", Checks: []CheckFunc{required(), futureDate()}},
		{Field: "consultationType", Label: "Consultation type", Checks: []CheckFunc{required()}},
	},
	form.TypePatientDemographics: {
		{Field: "firstName", Label: "First name", Checks: []CheckFunc{required()}},
		{Field: "lastName", Label: "Last name", Checks: []CheckFunc{required()}},
		{Field: "email", Label: "Email", Checks: []CheckFunc{required(), email(true)}},
		{Field: "phone", Label: "Phone", Checks: []CheckFunc{required(), phone()}},
		{Field: "dateOfBirth", Label: "Date of birth", Checks: []CheckFunc{required(), dateOfBirth()}},
		{Field: "address", Label: "Address", Checks: []CheckFunc{required()}},
		{Field: "city", Label: "City", Checks: []CheckFunc{required()}},
		{Field: "state", Label: "State", Checks: []CheckFunc{required()}},
		{Field: "zip", Label: "ZIP code", Checks: []CheckFunc{required()}},
		{Field: "emergencyContactName", Label: "Emergency contact name", Checks: []CheckFunc{required()}},
		{Field: "emergencyContactPhone", Label: "Emergency contact phone", Checks: []CheckFunc{required(), phone()}},
	},
	form.TypeMedicalHistory: {
		{Field: "name", Label: "Name", Checks: []CheckFunc{required()}},
		{Field: "dateOfBirth", Label: "Date of birth", Checks: []CheckFunc{required(), dateOfBirth()}},
		{Field: "conditions", Label: "condition", Checks: []CheckFunc{checkboxGroup(), knownCodes(form.KnownCondition)}},
		{Field: "medicationDoses", Label: "medication", Checks: []CheckFunc{doseIfPresent(form.KnownMedication)}},
		{Field: "primaryPhysician", Label: "Primary physician", Checks: []CheckFunc{}},
	},
	form.TypeBDI: {
		{Field: "name", Label: "Name", Checks: []CheckFunc{required()}},
		{Field: "date", Label: "Date", Checks: []CheckFunc{required(), date()}},
		{Field: "responses", Label: "Responses", Checks: []CheckFunc{responsesComplete(assessment.BDI.QuestionCount)}},
	},
	form.TypePHQ9: {
		{Field: "name", Label: "Name", Checks: []CheckFunc{required()}},
		{Field: "date", Label: "Date", Checks: []CheckFunc{required(), date()}},
		{Field: "responses", Label: "Responses", Checks: []CheckFunc{responsesComplete(assessment.PHQ9.QuestionCount)}},
	},
	form.TypePreCertMedList: {
		{Field: "name", Label: "Name", Checks: []CheckFunc{required()}},
		{Field: "dateOfBirth", Label: "Date of birth", Checks: []CheckFunc{required(), dateOfBirth()}},
		{Field: "medications", Label: "medication", Checks: []CheckFunc{checkboxGroup(), knownCodes(form.KnownMedication)}},
		{Field: "medicationDoses", Label: "medication", Checks: []CheckFunc{doseIfPresent(form.KnownMedication)}},
	},
}

// Rules returns the rule table for a form type.
func Rules(t form.Type) []Rule { return formRules[t] }

// ValidateForm runs every rule for the form type and collects every
// failure. It never short-circuits: a required-ness failure on one field
// cannot mask errors on another.
func ValidateForm(t form.Type, f form.Fields) Result {
	rules, ok := formRules[t]
	if !ok {
		return Result{
			Valid:  false,
			Errors: map[string]string{"form": fmt.Sprintf("unknown form type: %s", t)},
			First:  "form",
		}
	}

	errors := make(map[string]string)
	first := ""
	for _, r := range rules {
		for _, check := range r.Checks {
			if err := check(f, r.Field, r.Label); err != nil {
				errors[r.Field] = err.Message
				if first == "" {
					first = r.Field
				}
				break
			}
		}
	}

	if len(errors) == 0 {
		return Result{Valid: true}
	}
	return Result{Valid: false, Errors: errors, First: first}
}
