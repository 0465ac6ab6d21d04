// Package submission implements the per-form intake workflow: validate,
// pre-flight, session resolution, scoring, then a dual-channel dispatch
// where the summary email and the database write succeed or fail
// independently.
package submission

import (
	"time"

	"github.com/google/uuid"

	"github.com/tmsclinic/intake/internal/intake/form"
)

// Outcome is the persisted dispatch state of a submission record.
type Outcome string

const (
	// OutcomeDelivered: email and database write both succeeded.
	OutcomeDelivered Outcome = "delivered"
	// OutcomePartial: the record is stored but the email channel failed.
	OutcomePartial Outcome = "partial"
)

// Record maps to the form_submissions table.
type Record struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	SubmissionID string      `db:"submission_id" json:"submission_id"`
	FormType     form.Type   `db:"form_type" json:"form_type"`
	SessionID    uuid.UUID   `db:"session_id" json:"session_id"`
	PatientID    *uuid.UUID  `db:"patient_id" json:"patient_id,omitempty"`
	Payload      form.Fields `db:"payload" json:"payload"`
	TotalScore   *int        `db:"total_score" json:"total_score,omitempty"`
	Severity     *string     `db:"severity" json:"severity,omitempty"`
	EmailSent    bool        `db:"email_sent" json:"email_sent"`
	Outcome      Outcome     `db:"outcome" json:"outcome"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Result is the combined outcome of one background dispatch.
// Success is true only when both channels succeeded; EmailSent lets the
// caller distinguish the partial case where the clinic still received the
// data by email.
type Result struct {
	Success   bool `json:"success"`
	EmailSent bool `json:"email_sent"`
	Stored    bool `json:"stored"`
}

// Status classifies the synchronous part of a submit attempt.
type Status string

const (
	// StatusAccepted: validation, pre-flight, and session resolution
	// passed; dispatch continues in the background.
	StatusAccepted Status = "accepted"
	// StatusInvalid: one or more fields failed validation; nothing was
	// attempted remotely.
	StatusInvalid Status = "invalid"
	// StatusOffline: the pre-flight reachability check failed; the
	// submission was blocked before any remote call and NOT queued.
	StatusOffline Status = "offline"
)

// Receipt is what the client gets back from a submit attempt.
type Receipt struct {
	Status       Status            `json:"status"`
	SubmissionID string            `json:"submission_id,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	FirstInvalid string            `json:"first_invalid,omitempty"`
	TotalScore   *int              `json:"total_score,omitempty"`
	Severity     *string           `json:"severity,omitempty"`
}
