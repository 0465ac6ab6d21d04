// Package validation implements the field-level checks and per-form rule
// tables for intake submissions. All checks are pure: they inspect a value
// and return a failure code plus a user-facing message, or nil.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Code classifies a validation failure.
type Code string

const (
	MissingField   Code = "missing_field"
	InvalidFormat  Code = "invalid_format"
	OutOfRange     Code = "out_of_range"
	IncompleteForm Code = "incomplete_form"
	EmptySelection Code = "empty_selection"
)

// FieldError is a single failed check on a single field.
type FieldError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string { return e.Message }

var (
	emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	doseRe  = regexp.MustCompile(`^\d+(\.\d+)?\s*(mg|g|ml|mcg|IU|units)$`)
	digitRe = regexp.MustCompile(`\D`)
)

// Domains whose inboxes are throwaway. Rejected for the demographics form
// so the clinic can actually reach the patient.
var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"guerrillamail.com": true,
	"10minutemail.com":  true,
	"tempmail.com":      true,
	"temp-mail.org":     true,
	"throwawaymail.com": true,
	"yopmail.com":       true,
	"getnada.com":       true,
	"sharklasers.com":   true,
	"trashmail.com":     true,
}

// dateLayouts are the accepted client date formats, tried in order.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// today returns the current date truncated to midnight UTC. Overridable in
// tests so boundary cases are deterministic.
var today = func() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Required fails when value is empty or whitespace-only.
func Required(value, label string) *FieldError {
	if strings.TrimSpace(value) == "" {
		return &FieldError{MissingField, fmt.Sprintf("%s is required", label)}
	}
	return nil
}

// Email fails unless value has a local@domain.tld shape. When
// rejectDisposable is set, known throwaway domains also fail.
func Email(value string, rejectDisposable bool) *FieldError {
	if !emailRe.MatchString(value) {
		return &FieldError{InvalidFormat, "Please enter a valid email address"}
	}
	if rejectDisposable {
		at := strings.LastIndex(value, "@")
		domain := strings.ToLower(value[at+1:])
		if disposableDomains[domain] {
			return &FieldError{InvalidFormat, "Please use a permanent email address"}
		}
	}
	return nil
}

// Phone strips non-digit characters and fails when fewer than 10 digits
// remain.
func Phone(value string) *FieldError {
	digits := digitRe.ReplaceAllString(value, "")
	if len(digits) < 10 {
		return &FieldError{InvalidFormat, "Please enter a valid phone number with at least 10 digits"}
	}
	return nil
}

// Date fails when value is unparseable.
func Date(value, label string) *FieldError {
	if _, ok := parseDate(value); !ok {
		return &FieldError{InvalidFormat, fmt.Sprintf("%s is not a valid date", label)}
	}
	return nil
}

// DateOfBirth rejects unparseable values, dates in the future, and dates
// implying an age over 120. A date of birth equal to today is accepted.
func DateOfBirth(value string) *FieldError {
	dob, ok := parseDate(value)
	if !ok {
		return &FieldError{InvalidFormat, "Date of birth is not a valid date"}
	}
	now := today()
	if dob.After(now) {
		return &FieldError{OutOfRange, "Date of birth cannot be in the future"}
	}
	if dob.Before(now.AddDate(-120, 0, 0)) {
		return &FieldError{OutOfRange, "Date of birth implies an age over 120"}
	}
	return nil
}

// FutureDate enforces the scheduling policy: the date must be strictly
// after today. Today itself is rejected.
func FutureDate(value, label string) *FieldError {
	d, ok := parseDate(value)
	if !ok {
		return &FieldError{InvalidFormat, fmt.Sprintf("%s is not a valid date", label)}
	}
	if !d.After(today()) {
		return &FieldError{OutOfRange, fmt.Sprintf("%s must be a future date", label)}
	}
	return nil
}

// Age fails outside [1, 120].
func Age(value string) *FieldError {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return &FieldError{InvalidFormat, "Age must be a number"}
	}
	if n < 1 || n > 120 {
		return &FieldError{OutOfRange, "Age must be between 1 and 120"}
	}
	return nil
}

// Dose accepts a numeric quantity followed by a recognised unit
// (e.g. "37.5 mg", "1000IU").
func Dose(value string) *FieldError {
	if !doseRe.MatchString(strings.TrimSpace(value)) {
		return &FieldError{InvalidFormat, "Dose must be a number followed by a unit (mg, g, ml, mcg, IU, units)"}
	}
	return nil
}

// CheckboxGroup fails when no entry in the selection map is true.
func CheckboxGroup(selection map[string]bool, label string) *FieldError {
	for _, checked := range selection {
		if checked {
			return nil
		}
	}
	return &FieldError{EmptySelection, fmt.Sprintf("Please select at least one %s", label)}
}

// KnownCodes fails when the selection map carries a code outside the
// recognised set. Codes are checked in sorted order so the reported
// offender is deterministic.
func KnownCodes(selection map[string]bool, known func(string) bool, label string) *FieldError {
	codes := make([]string, 0, len(selection))
	for code := range selection {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		if !known(code) {
			return &FieldError{InvalidFormat, fmt.Sprintf("%q is not a recognised %s code", code, label)}
		}
	}
	return nil
}

// AssessmentResult is the outcome of checking a response set for
// completeness.
type AssessmentResult struct {
	Valid      bool
	Err        *FieldError
	Unanswered []int // 1-based question numbers
}

// AssessmentResponses verifies that every question index in
// [0, totalQuestions) has a non-empty response. Validity is per question:
// a partially-filled combined option counts the same as a plain one.
func AssessmentResponses(responses map[int]string, totalQuestions int) AssessmentResult {
	var unanswered []int
	for i := 0; i < totalQuestions; i++ {
		if v, ok := responses[i]; !ok || strings.TrimSpace(v) == "" {
			unanswered = append(unanswered, i+1)
		}
	}
	if len(unanswered) == 0 {
		return AssessmentResult{Valid: true}
	}
	sort.Ints(unanswered)
	nums := make([]string, len(unanswered))
	for i, q := range unanswered {
		nums[i] = strconv.Itoa(q)
	}
	return AssessmentResult{
		Valid: false,
		Err: &FieldError{
			IncompleteForm,
			fmt.Sprintf("Please answer question(s) %s", strings.Join(nums, ", ")),
		},
		Unanswered: unanswered,
	}
}
