// Package notification delivers intake submission summaries to the clinic
// inbox. The primary channel is an HTML summary; when rendering or the
// HTML send fails, one plain-text fallback is attempted and that
// fallback's failure is the error reported up.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/intake/form"
)

// EmailSender is the outbound email port.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// ---------------------------------------------------------------------------
// Resend-compatible HTTP sender
// ---------------------------------------------------------------------------

// ResendSender posts messages to a Resend-compatible email API.
type ResendSender struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

// NewResendSender builds a sender against apiURL (e.g.
// https://api.resend.com/emails) authenticated with apiKey.
func NewResendSender(apiURL, apiKey, from string) *ResendSender {
	return &ResendSender{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{},
	}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// SendEmail posts one message. Non-2xx responses are errors.
func (s *ResendSender) SendEmail(ctx context.Context, to, subject, htmlBody, textBody string) error {
	body, err := json.Marshal(resendPayload{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return fmt.Errorf("encode email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email API returned %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Summary is the content of one submission summary email.
type Summary struct {
	SubmissionID string
	FormType     form.Type
	Fields       form.Fields
	TotalScore   *int
	Severity     *string
}

// Mailer renders and sends submission summaries to a fixed clinic address.
type Mailer struct {
	sender EmailSender
	to     string
	log    zerolog.Logger
}

// NewMailer wires a Mailer. to is the clinic inbox every summary goes to.
func NewMailer(sender EmailSender, to string, log zerolog.Logger) *Mailer {
	return &Mailer{
		sender: sender,
		to:     to,
		log:    log.With().Str("component", "mailer").Logger(),
	}
}

// SendSummary delivers one summary. The HTML document is attempted first;
// any failure there (rendering or sending) triggers exactly one plain-text
// fallback, whose own failure is the error returned.
func (m *Mailer) SendSummary(ctx context.Context, s Summary) error {
	subject := subjectFor(s.FormType)

	html, renderErr := renderHTML(s)
	if renderErr == nil {
		if err := m.sender.SendEmail(ctx, m.to, subject, html, ""); err == nil {
			return nil
		} else {
			m.log.Warn().Err(err).Str("form", string(s.FormType)).Msg("html summary send failed, falling back to plain text")
		}
	} else {
		m.log.Warn().Err(renderErr).Str("form", string(s.FormType)).Msg("summary render failed, falling back to plain text")
	}

	if err := m.sender.SendEmail(ctx, m.to, subject, "", renderText(s)); err != nil {
		return fmt.Errorf("plain-text fallback: %w", err)
	}
	return nil
}

func subjectFor(t form.Type) string {
	switch t {
	case form.TypeContact:
		return "New consultation request"
	case form.TypePatientDemographics:
		return "New patient demographic sheet"
	case form.TypeMedicalHistory:
		return "New medical history form"
	case form.TypeBDI:
		return "New BDI-II assessment"
	case form.TypePHQ9:
		return "New PHQ-9 screening"
	case form.TypePreCertMedList:
		return "New pre-certification medication list"
	default:
		return "New intake submission"
	}
}

// ---------------------------------------------------------------------------
// Mock sender (test double)
// ---------------------------------------------------------------------------

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
	// FailHTMLOnly rejects calls carrying an HTML body but lets the
	// plain-text fallback through.
	FailHTMLOnly bool
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, htmlBody, textBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, HTMLBody: htmlBody, TextBody: textBody})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	if m.FailHTMLOnly && htmlBody != "" {
		return errors.New("html rejected")
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
