package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/platform/kvstore"
)

// -- Mock Repositories --

type mockRepo struct {
	byToken map[string]*Record
	failGet bool
	creates int
}

func newMockRepo() *mockRepo {
	return &mockRepo{byToken: make(map[string]*Record)}
}

func (m *mockRepo) Create(_ context.Context, r *Record) error {
	r.ID = uuid.New()
	m.byToken[r.Token] = r
	m.creates++
	return nil
}

func (m *mockRepo) GetByToken(_ context.Context, token string) (*Record, error) {
	if m.failGet {
		return nil, fmt.Errorf("remote store unavailable")
	}
	r, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRepo) LinkPatient(_ context.Context, sessionID, patientID uuid.UUID) error {
	for _, r := range m.byToken {
		if r.ID == sessionID {
			r.PatientID = &patientID
			return nil
		}
	}
	return fmt.Errorf("not found")
}

type mockPatientRepo struct {
	records map[uuid.UUID]*Patient
	fail    bool
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{records: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if m.fail {
		return fmt.Errorf("insert failed")
	}
	p.ID = uuid.New()
	m.records[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

type mockLinker struct {
	linked map[uuid.UUID]uuid.UUID
	fail   bool
}

func newMockLinker() *mockLinker {
	return &mockLinker{linked: make(map[uuid.UUID]uuid.UUID)}
}

func (m *mockLinker) LinkPatient(_ context.Context, sessionID, patientID uuid.UUID) error {
	if m.fail {
		return fmt.Errorf("link failed")
	}
	m.linked[sessionID] = patientID
	return nil
}

func newTestManager() (*Manager, *mockRepo, *mockPatientRepo, *mockLinker) {
	repo := newMockRepo()
	patients := newMockPatientRepo()
	linker := newMockLinker()
	log := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	m := NewManager(kvstore.Namespaced(kvstore.NewMemory(), "session"), repo, patients, linker, log)
	return m, repo, patients, linker
}

func TestResolveCreatesAndVerifies(t *testing.T) {
	ctx := context.Background()
	m, repo, _, _ := newTestManager()

	s, err := m.Resolve(ctx, "device-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.State != StateVerified {
		t.Errorf("state = %s, want verified", s.State)
	}
	if s.TemporaryID == "" || s.RemoteRecordID == nil {
		t.Errorf("incomplete session: %+v", s)
	}
	if repo.creates != 1 {
		t.Errorf("remote creates = %d, want 1", repo.creates)
	}
}

func TestResolveReusesAcrossForms(t *testing.T) {
	ctx := context.Background()
	m, repo, _, _ := newTestManager()

	first, err := m.Resolve(ctx, "device-1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Resolve(ctx, "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.TemporaryID != second.TemporaryID {
		t.Errorf("token changed between forms: %s vs %s", first.TemporaryID, second.TemporaryID)
	}
	if repo.creates != 1 {
		t.Errorf("remote creates = %d, want 1 (no write when record exists)", repo.creates)
	}
}

func TestResolveSeparateDevices(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager()

	a, _ := m.Resolve(ctx, "device-a")
	b, _ := m.Resolve(ctx, "device-b")
	if a.TemporaryID == b.TemporaryID {
		t.Error("separate devices must get separate tokens")
	}
}

func TestResolveRemoteFailureReturnsTypedError(t *testing.T) {
	ctx := context.Background()
	m, repo, _, _ := newTestManager()
	repo.failGet = true

	_, err := m.Resolve(ctx, "device-1")
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("want *session.Error, got %v", err)
	}
}

func TestStartFreshReplacesSession(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newTestManager()

	old, _ := m.Resolve(ctx, "device-1")
	fresh, err := m.StartFresh(ctx, "device-1")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.TemporaryID == old.TemporaryID {
		t.Error("StartFresh must mint a new token")
	}
	// The fresh session is what subsequent resolves see.
	again, _ := m.Resolve(ctx, "device-1")
	if again.TemporaryID != fresh.TemporaryID {
		t.Error("fresh session not persisted")
	}
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	m, repo, patients, linker := newTestManager()

	s, _ := m.Resolve(ctx, "device-1")
	converted, err := m.Convert(ctx, "device-1", &Patient{
		FirstName: "Jo", LastName: "Smith",
		Email: "jo@example.com", Phone: "8285550172", DateOfBirth: "1980-05-01",
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.State != StateConverted {
		t.Errorf("state = %s", converted.State)
	}
	if len(patients.records) != 1 {
		t.Errorf("patients created = %d", len(patients.records))
	}
	rec := repo.byToken[s.TemporaryID]
	if rec.PatientID == nil {
		t.Error("session record not linked to patient")
	}
	if got := linker.linked[rec.ID]; got != *rec.PatientID {
		t.Error("prior submissions not relinked")
	}

	// Converting again is a no-op.
	again, err := m.Convert(ctx, "device-1", &Patient{})
	if err != nil || again.State != StateConverted {
		t.Errorf("second convert: %v, %v", again, err)
	}
	if len(patients.records) != 1 {
		t.Error("second convert must not create another patient")
	}
}

func TestConvertFailurePropagates(t *testing.T) {
	ctx := context.Background()
	m, _, patients, _ := newTestManager()
	patients.fail = true

	if _, err := m.Resolve(ctx, "device-1"); err != nil {
		t.Fatal(err)
	}
	_, err := m.Convert(ctx, "device-1", &Patient{FirstName: "Jo"})
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("conversion failure must propagate as *session.Error, got %v", err)
	}
}

func TestConvertSurvivesLinkerFailure(t *testing.T) {
	ctx := context.Background()
	m, _, _, linker := newTestManager()
	linker.fail = true

	if _, err := m.Resolve(ctx, "device-1"); err != nil {
		t.Fatal(err)
	}
	s, err := m.Convert(ctx, "device-1", &Patient{FirstName: "Jo"})
	if err != nil {
		t.Fatalf("relink is best-effort, convert should succeed: %v", err)
	}
	if s.State != StateConverted {
		t.Errorf("state = %s", s.State)
	}
}
