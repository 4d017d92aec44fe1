package diagnosis

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no diagnosis entry matches.
	ErrNotFound = errors.New("diagnosis not found")
	// ErrTestNotFound is returned when no recommended test matches.
	ErrTestNotFound = errors.New("test not found")
)

type Repository interface {
	// Create persists the entry together with its tests.
	Create(ctx context.Context, e *Entry) error
	// Get loads one entry with its tests and reviews.
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	// ListByPatient loads every entry for the patient, tests included,
	// in upload order.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Entry, error)
	// Update writes the entry's mutable columns (status, medicine, note,
	// revisit timeframe). Tests and reviews are written separately.
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddTest(ctx context.Context, t *TestItem) error
	GetTest(ctx context.Context, id uuid.UUID) (*TestItem, error)
	UpdateTest(ctx context.Context, t *TestItem) error

	AddReview(ctx context.Context, r *ReviewRecord) error
}
