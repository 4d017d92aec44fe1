package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/oculoflow/oculoflow/internal/domain/patient"
	"github.com/oculoflow/oculoflow/internal/platform/db"
	"github.com/oculoflow/oculoflow/pkg/apperror"
)

// txBeginner is satisfied by *pgxpool.Pool. A nil beginner (unit tests) runs
// operations without a transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service is the diagnosis lifecycle engine. Every mutation re-derives the
// owning patient's status through DeriveStatus and writes the patient row
// under its optimistic version guard, so concurrent writers surface as 409s
// instead of silently racing.
type Service struct {
	patients patient.Repository
	entries  Repository
	tx       txBeginner
}

func NewService(patients patient.Repository, entries Repository, tx txBeginner) *Service {
	return &Service{patients: patients, entries: entries, tx: tx}
}

// withTx runs fn inside one transaction carried on the context, so patient
// and diagnosis writes commit or roll back together.
func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	tx, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	ctx = db.WithTx(ctx, tx)
	if err := fn(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) getPatient(ctx context.Context, ref string) (*patient.Patient, error) {
	p, err := s.patients.GetByRef(ctx, ref)
	if errors.Is(err, patient.ErrNotFound) {
		return nil, apperror.NotFound("PATIENT_NOT_FOUND", "no patient with ref "+ref)
	}
	return p, err
}

// getEntry loads a diagnosis and checks it belongs to the patient.
func (s *Service) getEntry(ctx context.Context, p *patient.Patient, diagnosisID uuid.UUID) (*Entry, error) {
	e, err := s.entries.Get(ctx, diagnosisID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NotFound("DIAGNOSIS_NOT_FOUND", "no diagnosis with id "+diagnosisID.String())
	}
	if err != nil {
		return nil, err
	}
	if e.PatientID != p.ID {
		return nil, apperror.NotFound("DIAGNOSIS_NOT_FOUND", "no diagnosis with id "+diagnosisID.String())
	}
	return e, nil
}

// setPatientStatus writes the patient row when the status (or category set)
// changed, mapping version conflicts to 409.
func (s *Service) setPatientStatus(ctx context.Context, p *patient.Patient, status string) error {
	p.Status = status
	if err := s.patients.Update(ctx, p); err != nil {
		if errors.Is(err, patient.ErrVersionConflict) {
			return apperror.Conflict("VERSION_CONFLICT", "patient was modified concurrently, retry")
		}
		return err
	}
	return nil
}

// Create appends a new Unchecked entry for the patient named in the command's
// filename, unions the disease category into the patient's tag set, and puts
// the patient back into Pre-Monitoring.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Entry, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var created *Entry
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, cmd.PatientRef)
		if err != nil {
			return err
		}

		e := &Entry{
			PatientID:        p.ID,
			Eye:              cmd.Eye,
			ImageURL:         cmd.ImageURL,
			Label:            cmd.Label,
			ConfidenceScores: cmd.ConfidenceScores,
			Status:           StatusUnchecked,
		}
		if err := s.entries.Create(ctx, e); err != nil {
			return fmt.Errorf("creating diagnosis: %w", err)
		}

		p.AddCategory(cmd.Category)
		if err := s.setPatientStatus(ctx, p, patient.StatusPreMonitoring); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_ref", cmd.PatientRef).
		Str("diagnosis_id", created.ID.String()).
		Str("category", cmd.Category).
		Msg("diagnosis created")
	return created, nil
}

// RecordRecommendation records the first clinical assessment of an entry,
// moving it Unchecked → Checked. Once every entry is checked the patient
// moves to Monitoring.
func (s *Service) RecordRecommendation(ctx context.Context, ref string, diagnosisID uuid.UUID, cmd RecommendCommand) (*Entry, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var out *Entry
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, ref)
		if err != nil {
			return err
		}
		e, err := s.getEntry(ctx, p, diagnosisID)
		if err != nil {
			return err
		}
		if e.Status != StatusUnchecked {
			return apperror.Invalid("DIAGNOSIS_ALREADY_CHECKED",
				fmt.Sprintf("diagnosis is already %s; recommendations cannot be rewritten", e.Status))
		}

		e.Medicine = &cmd.Medicine
		e.Note = &cmd.Note
		e.Status = StatusChecked
		if err := s.entries.Update(ctx, e); err != nil {
			return err
		}
		for _, name := range cmd.Tests {
			t := e.AddTest(name)
			if err := s.entries.AddTest(ctx, t); err != nil {
				return err
			}
		}

		all, err := s.entries.ListByPatient(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.setPatientStatus(ctx, p, DeriveStatus(all)); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_ref", ref).
		Str("diagnosis_id", diagnosisID.String()).
		Int("tests", len(cmd.Tests)).
		Msg("recommendation recorded")
	return out, nil
}

// RecordReview appends a follow-up review to a diagnosis. Only legal while
// the patient sits in the Review queue. Pending tests send the patient back
// to Monitoring; otherwise the clinician's chosen status (or Completed)
// applies.
func (s *Service) RecordReview(ctx context.Context, ref string, diagnosisID uuid.UUID, cmd ReviewCommand) (*Entry, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var out *Entry
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, ref)
		if err != nil {
			return err
		}
		if p.Status != patient.StatusReview {
			return apperror.Forbidden("REVIEW_NOT_ALLOWED",
				fmt.Sprintf("patient status is %q; reviews are only allowed in %q", p.Status, patient.StatusReview))
		}
		e, err := s.getEntry(ctx, p, diagnosisID)
		if err != nil {
			return err
		}

		if err := s.entries.AddReview(ctx, &ReviewRecord{
			DiagnosisID:         e.ID,
			RecommendedMedicine: cmd.RecommendedMedicine,
			Notes:               cmd.Notes,
		}); err != nil {
			return err
		}
		for _, name := range cmd.AdditionalTests {
			t := e.AddTest(name)
			if err := s.entries.AddTest(ctx, t); err != nil {
				return err
			}
		}
		if cmd.RevisitTimeFrame != "" {
			e.RevisitTimeFrame = &cmd.RevisitTimeFrame
		}
		e.Status = StatusChecked
		if err := s.entries.Update(ctx, e); err != nil {
			return err
		}

		next := patient.StatusCompleted
		switch {
		case e.AnyTestPending():
			next = patient.StatusMonitoring
		case cmd.DoctorStatus != "":
			next = cmd.DoctorStatus
		}
		if err := s.setPatientStatus(ctx, p, next); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_ref", ref).
		Str("diagnosis_id", diagnosisID.String()).
		Msg("review recorded")
	return out, nil
}

// UpdateTestStatus moves one recommended test to a new status. A test cannot
// progress with zero evidence: an attachment must already exist or be
// supplied with the change. No patient-status side effect.
func (s *Service) UpdateTestStatus(ctx context.Context, ref string, diagnosisID, testID uuid.UUID, cmd TestStatusCommand) (*TestItem, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var out *TestItem
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := s.getEntry(ctx, p, diagnosisID); err != nil {
			return err
		}
		t, err := s.entries.GetTest(ctx, testID)
		if err != nil {
			if errors.Is(err, ErrTestNotFound) {
				return apperror.NotFound("TEST_NOT_FOUND", "no test with id "+testID.String())
			}
			return err
		}
		if t.DiagnosisID != diagnosisID {
			return apperror.NotFound("TEST_NOT_FOUND", "no test with id "+testID.String())
		}

		if cmd.Status != t.Status && t.AttachmentURL == nil && cmd.AttachmentURL == "" {
			return apperror.Invalid("ATTACHMENT_REQUIRED",
				"a result attachment is required before the test status can change")
		}

		t.Status = cmd.Status
		if cmd.AttachmentURL != "" {
			t.AttachmentURL = &cmd.AttachmentURL
		}
		if err := s.entries.UpdateTest(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_ref", ref).
		Str("test_id", testID.String()).
		Str("status", cmd.Status).
		Msg("test status updated")
	return out, nil
}

// Complete moves a Checked entry to Test Completed once every recommended
// test is done. When no other entry still needs work the patient is
// Published.
func (s *Service) Complete(ctx context.Context, ref string, diagnosisID uuid.UUID) (*Entry, error) {
	var out *Entry
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, ref)
		if err != nil {
			return err
		}
		e, err := s.getEntry(ctx, p, diagnosisID)
		if err != nil {
			return err
		}
		if e.Status != StatusChecked {
			return apperror.Invalid("INVALID_STATE",
				fmt.Sprintf("diagnosis status is %q, expected %q", e.Status, StatusChecked))
		}
		if unfinished := e.UnfinishedTests(); len(unfinished) > 0 {
			return apperror.Invalid("INVALID_STATE",
				"tests not finished: "+strings.Join(unfinished, ", "))
		}

		e.Status = StatusTestCompleted
		if err := s.entries.Update(ctx, e); err != nil {
			return err
		}

		all, err := s.entries.ListByPatient(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.setPatientStatus(ctx, p, DeriveStatus(all)); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("patient_ref", ref).
		Str("diagnosis_id", diagnosisID.String()).
		Msg("diagnosis completed")
	return out, nil
}

// Get returns one diagnosis with tests and reviews.
func (s *Service) Get(ctx context.Context, ref string, diagnosisID uuid.UUID) (*Entry, error) {
	p, err := s.getPatient(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.getEntry(ctx, p, diagnosisID)
}

// ListForPatient returns the patient's diagnosis history in upload order.
func (s *Service) ListForPatient(ctx context.Context, ref string) ([]*Entry, error) {
	p, err := s.getPatient(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.entries.ListByPatient(ctx, p.ID)
}

// Delete removes an entry for data correction. Category tags are not pruned
// and the patient status is re-derived from the remaining entries.
func (s *Service) Delete(ctx context.Context, ref string, diagnosisID uuid.UUID) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.getPatient(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := s.getEntry(ctx, p, diagnosisID); err != nil {
			return err
		}
		if err := s.entries.Delete(ctx, diagnosisID); err != nil {
			return err
		}

		all, err := s.entries.ListByPatient(ctx, p.ID)
		if err != nil {
			return err
		}
		return s.setPatientStatus(ctx, p, DeriveStatus(all))
	})
}
