package submission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tmsclinic/intake/internal/intake/form"
)

// ErrNotFound is returned when no record matches the submission id.
var ErrNotFound = errors.New("submission not found")

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed submission Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, submission_id, form_type, session_id, patient_id, payload,
	total_score, severity, email_sent, outcome, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.SubmissionID, &r.FormType, &r.SessionID, &r.PatientID,
		&r.Payload, &r.TotalScore, &r.Severity, &r.EmailSent, &r.Outcome,
		&r.CreatedAt, &r.UpdatedAt)
	return &r, err
}

func (p *repoPG) Insert(ctx context.Context, r *Record) (bool, error) {
	r.ID = uuid.New()
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO form_submissions (id, submission_id, form_type, session_id, patient_id,
			payload, total_score, severity, email_sent, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (submission_id) DO NOTHING`,
		r.ID, r.SubmissionID, r.FormType, r.SessionID, r.PatientID,
		r.Payload, r.TotalScore, r.Severity, r.EmailSent, r.Outcome)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (p *repoPG) UpdateChannelState(ctx context.Context, submissionID string, emailSent bool, outcome Outcome) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE form_submissions SET email_sent = $2, outcome = $3, updated_at = NOW()
		WHERE submission_id = $1`, submissionID, emailSent, outcome)
	return err
}

func (p *repoPG) GetBySubmissionID(ctx context.Context, submissionID string) (*Record, error) {
	r, err := scanRecord(p.pool.QueryRow(ctx,
		`SELECT `+cols+` FROM form_submissions WHERE submission_id = $1`, submissionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *repoPG) List(ctx context.Context, formType *form.Type, limit, offset int) ([]*Record, int, error) {
	var total int
	var rows pgx.Rows
	var err error
	if formType != nil {
		if err = p.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM form_submissions WHERE form_type = $1`, *formType).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = p.pool.Query(ctx,
			`SELECT `+cols+` FROM form_submissions WHERE form_type = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, *formType, limit, offset)
	} else {
		if err = p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM form_submissions`).Scan(&total); err != nil {
			return nil, 0, err
		}
		rows, err = p.pool.Query(ctx,
			`SELECT `+cols+` FROM form_submissions
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (p *repoPG) LinkPatient(ctx context.Context, sessionID, patientID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE form_submissions SET patient_id = $2, updated_at = NOW()
		WHERE session_id = $1 AND patient_id IS NULL`, sessionID, patientID)
	return err
}
