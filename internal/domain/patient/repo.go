package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no patient row matches.
	ErrNotFound = errors.New("patient not found")
	// ErrVersionConflict is returned by Update when the patient row changed
	// since it was read. Callers surface it as a 409.
	ErrVersionConflict = errors.New("patient version conflict")
)

// SearchParams filters patient listings.
type SearchParams struct {
	Query    string // matches patient_ref, name, or NIC
	Status   string
	Category string
}

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByRef(ctx context.Context, ref string) (*Patient, error)
	// Update writes the full row guarded by the version the caller read;
	// on success the patient's VersionID is incremented in place.
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error)
	NextRef(ctx context.Context) (string, error)

	// Medical history
	AddHistory(ctx context.Context, h *MedicalHistoryEntry) error
	GetHistory(ctx context.Context, patientID uuid.UUID) ([]*MedicalHistoryEntry, error)
	UpdateHistory(ctx context.Context, h *MedicalHistoryEntry) error
	DeleteHistory(ctx context.Context, id uuid.UUID) error
}
