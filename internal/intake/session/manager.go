package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/platform/kvstore"
)

const cacheSize = 512

// Manager drives the session state machine. Local state lives in the KV
// store (one entry per device key), remote state in the Repository.
//
// Every failure surfaces as a typed *Error; the orchestrator decides when
// to self-heal with StartFresh and when to propagate.
type Manager struct {
	kv       kvstore.Store
	repo     Repository
	patients PatientRepository
	linker   SubmissionLinker
	cache    *lru.Cache[string, uuid.UUID]
	log      zerolog.Logger
}

// NewManager wires a Manager. kv should already be namespaced to sessions.
func NewManager(kv kvstore.Store, repo Repository, patients PatientRepository, linker SubmissionLinker, log zerolog.Logger) *Manager {
	cache, _ := lru.New[string, uuid.UUID](cacheSize)
	return &Manager{
		kv:       kv,
		repo:     repo,
		patients: patients,
		linker:   linker,
		cache:    cache,
		log:      log.With().Str("component", "session").Logger(),
	}
}

// newToken builds the temporary session token: a ULID, i.e. creation
// timestamp plus a random suffix, unique per device-session.
func newToken() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

func (m *Manager) load(ctx context.Context, deviceKey string) (*Session, error) {
	raw, err := m.kv.Get(ctx, deviceKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// A corrupt local entry is unrecoverable; treat as no session.
		m.log.Warn().Err(err).Str("device", deviceKey).Msg("discarding corrupt local session")
		return nil, nil
	}
	return &s, nil
}

func (m *Manager) store(ctx context.Context, deviceKey string, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return &Error{Op: "store", Err: err}
	}
	if err := m.kv.Set(ctx, deviceKey, string(raw)); err != nil {
		return &Error{Op: "store", Err: err}
	}
	return nil
}

// Resolve returns the device's current session, advancing it through the
// state machine as needed:
//
//   - no local session → a token is generated and persisted (LocalOnly)
//     and the remote record is created immediately after (Verified);
//   - LocalOnly → the remote store is checked for the token; the record
//     is created when absent, reused when present (Verified);
//   - Verified / Converted → returned as-is.
func (m *Manager) Resolve(ctx context.Context, deviceKey string) (*Session, error) {
	s, err := m.load(ctx, deviceKey)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &Session{
			TemporaryID: newToken(),
			State:       StateLocalOnly,
			CreatedAt:   time.Now().UTC(),
		}
		if err := m.store(ctx, deviceKey, s); err != nil {
			return nil, err
		}
		m.log.Debug().Str("token", s.TemporaryID).Msg("created local session")
	}

	if s.State == StateLocalOnly {
		if err := m.verify(ctx, deviceKey, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// verify transitions LocalOnly → Verified against the remote store.
func (m *Manager) verify(ctx context.Context, deviceKey string, s *Session) error {
	if id, ok := m.cache.Get(s.TemporaryID); ok {
		s.RemoteRecordID = &id
		s.State = StateVerified
		return m.store(ctx, deviceKey, s)
	}

	rec, err := m.repo.GetByToken(ctx, s.TemporaryID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &Record{Token: s.TemporaryID}
		if err := m.repo.Create(ctx, rec); err != nil {
			return &Error{Op: "create remote record", Err: err}
		}
	case err != nil:
		return &Error{Op: "lookup remote record", Err: err}
	}

	s.RemoteRecordID = &rec.ID
	s.State = StateVerified
	m.cache.Add(s.TemporaryID, rec.ID)
	return m.store(ctx, deviceKey, s)
}

// StartFresh discards the device's local session and creates a new one,
// verified remotely. This is the self-healing path the orchestrator takes
// when Resolve fails.
func (m *Manager) StartFresh(ctx context.Context, deviceKey string) (*Session, error) {
	if err := m.kv.Delete(ctx, deviceKey); err != nil {
		return nil, &Error{Op: "reset", Err: err}
	}
	return m.Resolve(ctx, deviceKey)
}

// Convert links the session to a registered patient: the patient record is
// created, the remote session record points at it, and every prior
// submission under the session is re-associated. Requires a Verified
// session; errors propagate (no self-healing during conversion).
func (m *Manager) Convert(ctx context.Context, deviceKey string, p *Patient) (*Session, error) {
	s, err := m.Resolve(ctx, deviceKey)
	if err != nil {
		return nil, err
	}
	if s.State == StateConverted {
		return s, nil
	}
	if s.RemoteRecordID == nil {
		return nil, &Error{Op: "convert", Err: fmt.Errorf("session %s has no remote record", s.TemporaryID)}
	}

	if err := m.patients.Create(ctx, p); err != nil {
		return nil, &Error{Op: "create patient", Err: err}
	}
	if err := m.repo.LinkPatient(ctx, *s.RemoteRecordID, p.ID); err != nil {
		return nil, &Error{Op: "link session", Err: err}
	}

	// Best-effort relink of prior submissions; a failure here must not
	// undo the conversion, the clinic can reconcile from the session id.
	if err := m.linker.LinkPatient(ctx, *s.RemoteRecordID, p.ID); err != nil {
		m.log.Error().Err(err).
			Str("session_id", s.RemoteRecordID.String()).
			Str("patient_id", p.ID.String()).
			Msg("failed to relink prior submissions")
	}

	s.State = StateConverted
	if err := m.store(ctx, deviceKey, s); err != nil {
		return nil, err
	}
	m.log.Info().Str("patient_id", p.ID.String()).Msg("session converted")
	return s, nil
}
