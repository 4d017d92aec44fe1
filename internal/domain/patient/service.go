package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oculoflow/oculoflow/pkg/apperror"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RegisterPatient validates demographics, allocates the next "P<n>" reference
// and creates the patient in Pre-Monitoring.
func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return apperror.Invalid("VALIDATION_ERROR", "name is required")
	}
	if p.NIC == "" {
		return apperror.Invalid("VALIDATION_ERROR", "nic is required")
	}

	if p.PatientRef == "" {
		ref, err := s.repo.NextRef(ctx)
		if err != nil {
			return fmt.Errorf("allocating patient ref: %w", err)
		}
		p.PatientRef = ref
	}

	p.Status = StatusPreMonitoring
	if err := s.repo.Create(ctx, p); err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}

	log.Info().Str("patient_ref", p.PatientRef).Msg("patient registered")
	return nil
}

func (s *Service) GetPatient(ctx context.Context, ref string) (*Patient, error) {
	p, err := s.repo.GetByRef(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NotFound("PATIENT_NOT_FOUND", "no patient with ref "+ref)
	}
	return p, err
}

// UpdatePatient replaces demographic fields. Status, categories and the
// reference are lifecycle-owned and ignored here.
func (s *Service) UpdatePatient(ctx context.Context, ref string, in *Patient) (*Patient, error) {
	p, err := s.GetPatient(ctx, ref)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, apperror.Invalid("VALIDATION_ERROR", "name is required")
	}

	p.Name = in.Name
	if in.NIC != "" {
		p.NIC = in.NIC
	}
	p.BirthDate = in.BirthDate
	p.Gender = in.Gender
	p.ContactNumber = in.ContactNumber
	p.Email = in.Email
	p.Address = in.Address

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, mapUpdateErr(err)
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, ref string) error {
	p, err := s.GetPatient(ctx, ref)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, p.ID)
}

func (s *Service) ListPatients(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	if params.Status != "" && !ValidStatuses[params.Status] {
		return nil, 0, apperror.Invalid("VALIDATION_ERROR", "invalid status: "+params.Status)
	}
	if params.Category != "" && !ValidCategories[params.Category] {
		return nil, 0, apperror.Invalid("VALIDATION_ERROR", "invalid category: "+params.Category)
	}
	return s.repo.List(ctx, params, limit, offset)
}

// MarkForReview moves a Monitoring patient into the Review queue. This is the
// revisit-scheduling entry point: review actions on diagnoses are only legal
// while the patient stays in Review.
func (s *Service) MarkForReview(ctx context.Context, ref string) (*Patient, error) {
	p, err := s.GetPatient(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusMonitoring {
		return nil, apperror.Invalid("INVALID_STATE",
			fmt.Sprintf("patient status is %q, expected %q", p.Status, StatusMonitoring))
	}

	p.Status = StatusReview
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, mapUpdateErr(err)
	}

	log.Info().Str("patient_ref", p.PatientRef).Msg("patient marked for review")
	return p, nil
}

func mapUpdateErr(err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return apperror.Conflict("VERSION_CONFLICT", "patient was modified concurrently, retry")
	}
	return err
}

// -- Medical history --

func (s *Service) AddMedicalHistory(ctx context.Context, ref string, h *MedicalHistoryEntry) error {
	if h.Condition == "" {
		return apperror.Invalid("VALIDATION_ERROR", "condition is required")
	}
	p, err := s.GetPatient(ctx, ref)
	if err != nil {
		return err
	}
	h.PatientID = p.ID
	return s.repo.AddHistory(ctx, h)
}

func (s *Service) GetMedicalHistory(ctx context.Context, ref string) ([]*MedicalHistoryEntry, error) {
	p, err := s.GetPatient(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.GetHistory(ctx, p.ID)
}

func (s *Service) UpdateMedicalHistory(ctx context.Context, ref string, id uuid.UUID, h *MedicalHistoryEntry) error {
	if h.Condition == "" {
		return apperror.Invalid("VALIDATION_ERROR", "condition is required")
	}
	if _, err := s.GetPatient(ctx, ref); err != nil {
		return err
	}
	h.ID = id
	if err := s.repo.UpdateHistory(ctx, h); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperror.NotFound("NOT_FOUND", "no medical history entry with id "+id.String())
		}
		return err
	}
	return nil
}

func (s *Service) DeleteMedicalHistory(ctx context.Context, ref string, id uuid.UUID) error {
	if _, err := s.GetPatient(ctx, ref); err != nil {
		return err
	}
	if err := s.repo.DeleteHistory(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperror.NotFound("NOT_FOUND", "no medical history entry with id "+id.String())
		}
		return err
	}
	return nil
}
