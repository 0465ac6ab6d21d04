package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/intake/form"
)

func testLog() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestSendSummaryHTML(t *testing.T) {
	mock := &MockEmailSender{}
	m := NewMailer(mock, "intake@clinic.example", testLog())

	err := m.SendSummary(context.Background(), Summary{
		SubmissionID: "01JTEST",
		FormType:     form.TypePHQ9,
		Fields:       form.Fields{"name": "Jo Smith"},
		TotalScore:   intPtr(17),
		Severity:     strPtr("Moderately Severe"),
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.To != "intake@clinic.example" {
		t.Errorf("to = %q", c.To)
	}
	if c.Subject != "New PHQ-9 screening" {
		t.Errorf("subject = %q", c.Subject)
	}
	for _, want := range []string{"Jo Smith", "17", "Moderately Severe", "01JTEST"} {
		if !strings.Contains(c.HTMLBody, want) {
			t.Errorf("html body missing %q", want)
		}
	}
}

func TestSendSummaryFallsBackToPlainText(t *testing.T) {
	mock := &MockEmailSender{FailHTMLOnly: true}
	m := NewMailer(mock, "intake@clinic.example", testLog())

	err := m.SendSummary(context.Background(), Summary{
		SubmissionID: "01JTEST",
		FormType:     form.TypeContact,
		Fields:       form.Fields{"name": "Jo", "email": "jo@example.com"},
	})
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2 (html then fallback)", len(calls))
	}
	if calls[1].TextBody == "" || calls[1].HTMLBody != "" {
		t.Errorf("second call should be plain text: %+v", calls[1])
	}
	if !strings.Contains(calls[1].TextBody, "jo@example.com") {
		t.Errorf("text body missing field value: %q", calls[1].TextBody)
	}
}

func TestSendSummaryFallbackFailureIsFinal(t *testing.T) {
	mock := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	m := NewMailer(mock, "intake@clinic.example", testLog())

	err := m.SendSummary(context.Background(), Summary{
		FormType: form.TypeBDI,
		Fields:   form.Fields{"name": "Jo"},
	})
	if err == nil || !strings.Contains(err.Error(), "plain-text fallback") {
		t.Fatalf("want fallback error, got %v", err)
	}
	if len(mock.Calls()) != 2 {
		t.Errorf("exactly one fallback attempt expected, got %d calls", len(mock.Calls()))
	}
}

func TestRenderTextGroups(t *testing.T) {
	text := renderText(Summary{
		SubmissionID: "01JTEST",
		FormType:     form.TypePreCertMedList,
		Fields: form.Fields{
			"name": "Jo",
			"medications": map[string]interface{}{
				"sertraline": true,
				"fluoxetine": false,
			},
			"medicationDoses": map[string]interface{}{
				"sertraline": "50mg",
			},
		},
	})
	if !strings.Contains(text, "medications: sertraline") {
		t.Errorf("checked codes missing: %q", text)
	}
	if strings.Contains(text, "fluoxetine") {
		t.Errorf("unchecked code leaked: %q", text)
	}
	if !strings.Contains(text, "sertraline: 50mg") {
		t.Errorf("dose missing: %q", text)
	}
}

func TestResendSender(t *testing.T) {
	var got resendPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewResendSender(srv.URL, "secret-key", "intake@clinic.example")
	err := s.SendEmail(context.Background(), "inbox@clinic.example", "Subject", "<p>hi</p>", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret-key" {
		t.Errorf("auth header = %q", auth)
	}
	if got.From != "intake@clinic.example" || len(got.To) != 1 || got.To[0] != "inbox@clinic.example" {
		t.Errorf("payload = %+v", got)
	}
}

func TestResendSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewResendSender(srv.URL, "k", "from@x.example")
	if err := s.SendEmail(context.Background(), "to@x.example", "s", "", "t"); err == nil {
		t.Error("non-2xx must be an error")
	}
}
