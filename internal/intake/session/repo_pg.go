package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no session record matches the token.
var ErrNotFound = errors.New("session record not found")

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed session Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient_sessions (id, token, patient_id)
		VALUES ($1, $2, $3)`,
		rec.ID, rec.Token, rec.PatientID)
	return err
}

func (r *repoPG) GetByToken(ctx context.Context, token string) (*Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `
		SELECT id, token, patient_id, created_at, updated_at
		FROM patient_sessions WHERE token = $1`, token).
		Scan(&rec.ID, &rec.Token, &rec.PatientID, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repoPG) LinkPatient(ctx context.Context, sessionID, patientID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE patient_sessions SET patient_id = $2, updated_at = NOW()
		WHERE id = $1`, sessionID, patientID)
	return err
}

type patientRepoPG struct{ pool *pgxpool.Pool }

// NewPatientRepoPG returns the Postgres-backed PatientRepository.
func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (id, first_name, last_name, email, phone, date_of_birth)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, date_of_birth, created_at
		FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
