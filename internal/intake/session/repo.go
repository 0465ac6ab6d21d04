package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores the remote session records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByToken(ctx context.Context, token string) (*Record, error)
	LinkPatient(ctx context.Context, sessionID, patientID uuid.UUID) error
}

// PatientRepository stores registered patients.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
}

// SubmissionLinker re-associates prior submissions with a patient once the
// session converts. Implemented by the submission repository.
type SubmissionLinker interface {
	LinkPatient(ctx context.Context, sessionID, patientID uuid.UUID) error
}
