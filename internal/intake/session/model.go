// Package session maintains the per-device pseudo-identity that ties form
// submissions together before the patient is formally registered.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle position.
type State string

const (
	// StateLocalOnly: a temporary token exists locally, no remote check yet.
	StateLocalOnly State = "local_only"
	// StateVerified: a matching remote record exists (found or created).
	StateVerified State = "verified"
	// StateConverted: the session is linked to a registered patient.
	StateConverted State = "converted"
)

// Session is the device-side view, persisted as JSON in the KV store.
type Session struct {
	TemporaryID    string     `json:"temporary_id"`
	RemoteRecordID *uuid.UUID `json:"remote_record_id,omitempty"`
	State          State      `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Converted reports whether the session has been linked to a patient.
func (s *Session) Converted() bool { return s.State == StateConverted }

// Record maps to the patient_sessions table.
type Record struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Token     string     `db:"token" json:"token"`
	PatientID *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patients table. Created on conversion from the
// demographics form.
type Patient struct {
	ID          uuid.UUID `db:"id" json:"id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Email       string    `db:"email" json:"email"`
	Phone       string    `db:"phone" json:"phone"`
	DateOfBirth string    `db:"date_of_birth" json:"date_of_birth"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Error is the typed failure every session operation returns, so callers
// decide between self-healing and propagation in one place.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("session %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }
