package submission

import (
	"context"

	"github.com/google/uuid"

	"github.com/tmsclinic/intake/internal/intake/form"
)

// Repository stores submission records.
type Repository interface {
	// Insert writes a record keyed by its submission_id. Returns false
	// when a record with that submission_id already exists (a replay of
	// a partially-succeeded attempt); that is not an error.
	Insert(ctx context.Context, r *Record) (bool, error)
	// UpdateChannelState records the dispatch outcome on a stored row.
	UpdateChannelState(ctx context.Context, submissionID string, emailSent bool, outcome Outcome) error
	GetBySubmissionID(ctx context.Context, submissionID string) (*Record, error)
	List(ctx context.Context, formType *form.Type, limit, offset int) ([]*Record, int, error)
	// LinkPatient re-associates every record under a session with a
	// patient. Used during session conversion.
	LinkPatient(ctx context.Context, sessionID, patientID uuid.UUID) error
}
