package validation

import (
	"reflect"
	"testing"
	"time"
)

func fixedToday(t *testing.T, date string) {
	t.Helper()
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatal(err)
	}
	orig := today
	today = func() time.Time { return day }
	t.Cleanup(func() { today = orig })
}

func TestRequired(t *testing.T) {
	if err := Required("", "Name"); err == nil || err.Code != MissingField {
		t.Errorf("empty: got %v", err)
	}
	if err := Required("   ", "Name"); err == nil {
		t.Error("whitespace-only should fail")
	}
	if err := Required("Jo", "Name"); err != nil {
		t.Errorf("non-empty: got %v", err)
	}
}

func TestEmail(t *testing.T) {
	cases := []struct {
		value      string
		disposable bool
		wantErr    bool
	}{
		{"jo@example.com", false, false},
		{"jo@example.com", true, false},
		{"jo.smith+tms@clinic.org", true, false},
		{"not-an-email", false, true},
		{"missing@tld", false, true},
		{"@example.com", false, true},
		{"jo@mailinator.com", false, false},
		{"jo@mailinator.com", true, true},
		{"jo@YOPMAIL.com", true, true},
	}
	for _, c := range cases {
		err := Email(c.value, c.disposable)
		if (err != nil) != c.wantErr {
			t.Errorf("Email(%q, %v) = %v, wantErr %v", c.value, c.disposable, err, c.wantErr)
		}
	}
}

func TestPhone(t *testing.T) {
	if err := Phone("(828) 555-0172"); err != nil {
		t.Errorf("formatted US number: got %v", err)
	}
	if err := Phone("828-555-017"); err == nil || err.Code != InvalidFormat {
		t.Errorf("9 digits: got %v", err)
	}
	if err := Phone("+1 828 555 0172"); err != nil {
		t.Errorf("11 digits with country code: got %v", err)
	}
}

func TestDateOfBirthBoundaries(t *testing.T) {
	fixedToday(t, "2026-08-29")

	// Today is a valid date of birth (age 0 is in range).
	if err := DateOfBirth("2026-08-29"); err != nil {
		t.Errorf("DOB today: got %v", err)
	}
	if err := DateOfBirth("2026-08-30"); err == nil || err.Code != OutOfRange {
		t.Errorf("DOB tomorrow: got %v", err)
	}
	if err := DateOfBirth("1906-08-29"); err != nil {
		t.Errorf("DOB 120 years ago: got %v", err)
	}
	if err := DateOfBirth("1906-08-28"); err == nil || err.Code != OutOfRange {
		t.Errorf("DOB over 120 years ago: got %v", err)
	}
	if err := DateOfBirth("never"); err == nil || err.Code != InvalidFormat {
		t.Errorf("unparseable DOB: got %v", err)
	}
}

func TestFutureDateRejectsToday(t *testing.T) {
	fixedToday(t, "2026-08-29")

	// Scheduling policy differs from DOB: today itself is rejected.
	if err := FutureDate("2026-08-29", "Consultation date"); err == nil || err.Code != OutOfRange {
		t.Errorf("consultation today: got %v", err)
	}
	if err := FutureDate("2026-08-30", "Consultation date"); err != nil {
		t.Errorf("consultation tomorrow: got %v", err)
	}
	if err := FutureDate("2026-08-28", "Consultation date"); err == nil {
		t.Error("consultation yesterday should fail")
	}
}

func TestAge(t *testing.T) {
	for _, v := range []string{"1", "45", "120"} {
		if err := Age(v); err != nil {
			t.Errorf("Age(%q) = %v", v, err)
		}
	}
	for _, v := range []string{"0", "121", "-3"} {
		if err := Age(v); err == nil || err.Code != OutOfRange {
			t.Errorf("Age(%q) = %v, want OutOfRange", v, err)
		}
	}
	if err := Age("forty"); err == nil || err.Code != InvalidFormat {
		t.Errorf("Age(forty) = %v", err)
	}
}

func TestDose(t *testing.T) {
	for _, v := range []string{"20mg", "37.5 mg", "1000IU", "2 units", "0.5ml", "150 mcg"} {
		if err := Dose(v); err != nil {
			t.Errorf("Dose(%q) = %v", v, err)
		}
	}
	for _, v := range []string{"twenty mg", "20", "mg", "20 tablets", "20 MG"} {
		if err := Dose(v); err == nil {
			t.Errorf("Dose(%q) should fail", v)
		}
	}
}

func TestCheckboxGroup(t *testing.T) {
	if err := CheckboxGroup(map[string]bool{"depression": true, "anxiety": false}, "condition"); err != nil {
		t.Errorf("one checked: got %v", err)
	}
	if err := CheckboxGroup(map[string]bool{"depression": false}, "condition"); err == nil || err.Code != EmptySelection {
		t.Errorf("none checked: got %v", err)
	}
	if err := CheckboxGroup(nil, "condition"); err == nil {
		t.Error("nil group should fail")
	}
}

func TestAssessmentResponses(t *testing.T) {
	full := map[int]string{}
	for i := 0; i < 9; i++ {
		full[i] = "0"
	}
	if res := AssessmentResponses(full, 9); !res.Valid {
		t.Errorf("complete set: got %+v", res)
	}

	sparse := map[int]string{0: "1", 2: "3", 5: ""}
	res := AssessmentResponses(sparse, 9)
	if res.Valid {
		t.Fatal("sparse set should be invalid")
	}
	want := []int{2, 4, 5, 6, 7, 8, 9}
	if !reflect.DeepEqual(res.Unanswered, want) {
		t.Errorf("unanswered = %v, want %v", res.Unanswered, want)
	}
	if res.Err == nil || res.Err.Code != IncompleteForm {
		t.Errorf("err = %v", res.Err)
	}
}

func TestAssessmentResponsesIdempotent(t *testing.T) {
	responses := map[int]string{0: "1", 3: "2b"}
	first := AssessmentResponses(responses, 21)
	second := AssessmentResponses(responses, 21)
	if first.Valid != second.Valid || !reflect.DeepEqual(first.Unanswered, second.Unanswered) {
		t.Errorf("not idempotent: %+v vs %+v", first, second)
	}
	if first.Err.Message != second.Err.Message {
		t.Errorf("messages differ: %q vs %q", first.Err.Message, second.Err.Message)
	}
}
