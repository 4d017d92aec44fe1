package patient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/oculoflow/oculoflow/pkg/apperror"
)

type mockRepo struct {
	patients map[string]*Patient // by ref
	history  map[uuid.UUID]*MedicalHistoryEntry
	nextRef  int
	failNext error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[string]*Patient),
		history:  make(map[uuid.UUID]*MedicalHistoryEntry),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if m.failNext != nil {
		return m.failNext
	}
	p.ID = uuid.New()
	p.VersionID = 1
	m.patients[p.PatientRef] = p
	return nil
}

func (m *mockRepo) GetByRef(_ context.Context, ref string) (*Patient, error) {
	p, ok := m.patients[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if m.failNext != nil {
		return m.failNext
	}
	stored, ok := m.patients[p.PatientRef]
	if !ok {
		return ErrNotFound
	}
	if stored.VersionID != p.VersionID {
		return ErrVersionConflict
	}
	p.VersionID++
	m.patients[p.PatientRef] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	for ref, p := range m.patients {
		if p.ID == id {
			delete(m.patients, ref)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) List(_ context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if params.Status != "" && p.Status != params.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) NextRef(_ context.Context) (string, error) {
	m.nextRef++
	return fmt.Sprintf("P%d", m.nextRef), nil
}

func (m *mockRepo) AddHistory(_ context.Context, h *MedicalHistoryEntry) error {
	h.ID = uuid.New()
	m.history[h.ID] = h
	return nil
}

func (m *mockRepo) GetHistory(_ context.Context, patientID uuid.UUID) ([]*MedicalHistoryEntry, error) {
	var out []*MedicalHistoryEntry
	for _, h := range m.history {
		if h.PatientID == patientID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateHistory(_ context.Context, h *MedicalHistoryEntry) error {
	if _, ok := m.history[h.ID]; !ok {
		return ErrNotFound
	}
	m.history[h.ID] = h
	return nil
}

func (m *mockRepo) DeleteHistory(_ context.Context, id uuid.UUID) error {
	if _, ok := m.history[id]; !ok {
		return ErrNotFound
	}
	delete(m.history, id)
	return nil
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperror, got %v", err)
	}
	return appErr.Code
}

func TestRegisterPatientAssignsRef(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{Name: "Jane Perera", NIC: "902345678V"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.PatientRef != "P1" {
		t.Fatalf("ref = %q", p.PatientRef)
	}
	if p.Status != StatusPreMonitoring {
		t.Fatalf("status = %q", p.Status)
	}

	q := &Patient{Name: "Another", NIC: "912345678V"}
	if err := svc.RegisterPatient(context.Background(), q); err != nil {
		t.Fatalf("register: %v", err)
	}
	if q.PatientRef != "P2" {
		t.Fatalf("ref = %q", q.PatientRef)
	}
}

func TestRegisterPatientValidation(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.RegisterPatient(context.Background(), &Patient{NIC: "902345678V"})
	if appCode(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}

	err = svc.RegisterPatient(context.Background(), &Patient{Name: "No NIC"})
	if appCode(t, err) != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}
}

func TestGetPatientNotFound(t *testing.T) {
	svc := NewService(newMockRepo())

	_, err := svc.GetPatient(context.Background(), "P99")
	if appCode(t, err) != "PATIENT_NOT_FOUND" {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdatePatientVersionConflict(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{Name: "Jane", NIC: "902345678V"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Simulate a concurrent writer bumping the stored version.
	repo.patients[p.PatientRef].VersionID = 5

	stale := &Patient{PatientRef: p.PatientRef, Name: "x", VersionID: 1}
	if err := repo.Update(context.Background(), stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestMarkForReview(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{Name: "Jane", NIC: "902345678V"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Pre-Monitoring patients cannot be marked.
	_, err := svc.MarkForReview(context.Background(), p.PatientRef)
	if appCode(t, err) != "INVALID_STATE" {
		t.Fatalf("err = %v", err)
	}

	repo.patients[p.PatientRef].Status = StatusMonitoring
	got, err := svc.MarkForReview(context.Background(), p.PatientRef)
	if err != nil {
		t.Fatalf("mark for review: %v", err)
	}
	if got.Status != StatusReview {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestMedicalHistoryCRUD(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{Name: "Jane", NIC: "902345678V"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}

	entry := &MedicalHistoryEntry{Condition: "Type 2 Diabetes", Medications: []string{"Metformin"}}
	if err := svc.AddMedicalHistory(context.Background(), p.PatientRef, entry); err != nil {
		t.Fatalf("add history: %v", err)
	}

	entries, err := svc.GetMedicalHistory(context.Background(), p.PatientRef)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(entries) != 1 || entries[0].Condition != "Type 2 Diabetes" {
		t.Fatalf("entries = %+v", entries)
	}

	entry.Condition = "Hypertension"
	if err := svc.UpdateMedicalHistory(context.Background(), p.PatientRef, entry.ID, entry); err != nil {
		t.Fatalf("update history: %v", err)
	}

	if err := svc.DeleteMedicalHistory(context.Background(), p.PatientRef, entry.ID); err != nil {
		t.Fatalf("delete history: %v", err)
	}
	if err := svc.DeleteMedicalHistory(context.Background(), p.PatientRef, entry.ID); appCode(t, err) != "NOT_FOUND" {
		t.Fatalf("err = %v", err)
	}

	if err := svc.AddMedicalHistory(context.Background(), "P42", &MedicalHistoryEntry{Condition: "x"}); appCode(t, err) != "PATIENT_NOT_FOUND" {
		t.Fatalf("err = %v", err)
	}
}
