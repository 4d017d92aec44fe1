package diagnosis

import (
	"strings"

	"github.com/oculoflow/oculoflow/internal/domain/patient"
	"github.com/oculoflow/oculoflow/pkg/apperror"
)

// Commands are the typed request payloads the lifecycle engine accepts. Each
// is validated at the boundary so the service layer only ever sees well-typed
// input.

// CreateCommand creates one diagnosis entry from an uploaded, predicted
// image. The patient reference and eye side come from the filename.
type CreateCommand struct {
	FileName         string    `json:"file_name"`
	ImageURL         string    `json:"image_url"`
	Label            string    `json:"diagnosis"`
	ConfidenceScores []float64 `json:"confidence_scores"`
	Category         string    `json:"category"`

	// derived by Validate
	PatientRef string `json:"-"`
	Eye        string `json:"-"`
}

func (c *CreateCommand) Validate() error {
	if c.FileName == "" {
		return apperror.Invalid("VALIDATION_ERROR", "file_name is required")
	}
	ref, eye, err := ParseFilename(c.FileName)
	if err != nil {
		return apperror.Invalid("INVALID_FILENAME_FORMAT", err.Error())
	}
	c.PatientRef = ref
	c.Eye = eye

	if c.ImageURL == "" {
		return apperror.Invalid("VALIDATION_ERROR", "image_url is required")
	}
	if c.Category == "" || !patient.ValidCategories[c.Category] {
		return apperror.Invalid("VALIDATION_ERROR", "category must be one of DR, AMD, Glaucoma, RVO, Others")
	}
	return nil
}

// RecommendCommand records the clinician's first assessment of an Unchecked
// entry: prescribed medicine, recommended tests and a note.
type RecommendCommand struct {
	Medicine string   `json:"medicine"`
	Tests    []string `json:"tests"`
	Note     string   `json:"note"`
}

func (c *RecommendCommand) Validate() error {
	if strings.TrimSpace(c.Medicine) == "" && len(c.Tests) == 0 && strings.TrimSpace(c.Note) == "" {
		return apperror.Invalid("VALIDATION_ERROR", "recommendation must carry medicine, tests or a note")
	}
	for _, t := range c.Tests {
		if strings.TrimSpace(t) == "" {
			return apperror.Invalid("VALIDATION_ERROR", "test names must be non-empty")
		}
	}
	return nil
}

// ReviewCommand records a follow-up review while the patient is in the
// Review queue. DoctorStatus optionally hand-picks the patient's next status
// when no tests remain pending.
type ReviewCommand struct {
	RecommendedMedicine string   `json:"recommended_medicine"`
	Notes               string   `json:"notes"`
	AdditionalTests     []string `json:"additional_tests"`
	RevisitTimeFrame    string   `json:"revisit_timeframe"`
	DoctorStatus        string   `json:"doctor_status"`
}

func (c *ReviewCommand) Validate() error {
	if strings.TrimSpace(c.RecommendedMedicine) == "" && strings.TrimSpace(c.Notes) == "" {
		return apperror.Invalid("VALIDATION_ERROR", "review must carry recommended_medicine or notes")
	}
	for _, t := range c.AdditionalTests {
		if strings.TrimSpace(t) == "" {
			return apperror.Invalid("VALIDATION_ERROR", "test names must be non-empty")
		}
	}
	if c.DoctorStatus != "" && !AllowedDoctorStatuses[c.DoctorStatus] {
		return apperror.Invalid("VALIDATION_ERROR", "doctor_status is not an allowed patient status")
	}
	return nil
}

// TestStatusCommand moves one recommended test to a new status, optionally
// attaching a result file first.
type TestStatusCommand struct {
	Status        string `json:"status"`
	AttachmentURL string `json:"attachment_url"`
}

func (c *TestStatusCommand) Validate() error {
	if !ValidTestStatuses[c.Status] {
		return apperror.Invalid("VALIDATION_ERROR", "status must be one of Pending, In Progress, Completed, Reviewed")
	}
	return nil
}
