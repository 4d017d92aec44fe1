// Package diagnosis implements the diagnosis lifecycle: fundus image entries
// move Unchecked → Checked → Test Completed as clinicians record
// recommendations, reviews and test results, and the owning patient's status
// is derived from the aggregate state of all their entries.
package diagnosis

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oculoflow/oculoflow/internal/domain/patient"
)

// Diagnosis entry statuses. Transitions only move forward; there is no way
// back out of Test Completed.
const (
	StatusUnchecked     = "Unchecked"
	StatusChecked       = "Checked"
	StatusTestCompleted = "Test Completed"
)

// Recommended test statuses.
const (
	TestPending    = "Pending"
	TestInProgress = "In Progress"
	TestCompleted  = "Completed"
	TestReviewed   = "Reviewed"
)

// ValidTestStatuses lists every legal TestItem status.
var ValidTestStatuses = map[string]bool{
	TestPending:    true,
	TestInProgress: true,
	TestCompleted:  true,
	TestReviewed:   true,
}

// Eye sides as encoded in upload filenames.
const (
	EyeLeft  = "LEFT"
	EyeRight = "RIGHT"
)

// Entry maps to the diagnosis table. Tests and Reviews are loaded from their
// own tables when the full entry is fetched.
type Entry struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Eye              string    `db:"eye" json:"eye"`
	ImageURL         string    `db:"image_url" json:"image_url"`
	Label            string    `db:"label" json:"diagnosis"`
	ConfidenceScores []float64 `db:"confidence_scores" json:"confidence_scores"`
	Status           string    `db:"status" json:"status"`
	Medicine         *string   `db:"medicine" json:"medicine,omitempty"`
	Note             *string   `db:"note" json:"note,omitempty"`
	RevisitTimeFrame *string   `db:"revisit_timeframe" json:"revisit_timeframe,omitempty"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	Tests   []TestItem     `db:"-" json:"tests"`
	Reviews []ReviewRecord `db:"-" json:"reviews,omitempty"`
}

// TestItem maps to the diagnosis_test table.
type TestItem struct {
	ID            uuid.UUID `db:"id" json:"id"`
	DiagnosisID   uuid.UUID `db:"diagnosis_id" json:"diagnosis_id"`
	TestName      string    `db:"test_name" json:"test_name"`
	Status        string    `db:"status" json:"status"`
	AttachmentURL *string   `db:"attachment_url" json:"attachment_url,omitempty"`
	AddedAt       time.Time `db:"added_at" json:"added_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ReviewRecord maps to the diagnosis_review table. Reviews are append-only.
type ReviewRecord struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	DiagnosisID         uuid.UUID `db:"diagnosis_id" json:"diagnosis_id"`
	RecommendedMedicine string    `db:"recommended_medicine" json:"recommended_medicine"`
	Notes               string    `db:"notes" json:"notes"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// AllTestsDone reports whether every recommended test has reached Completed
// or Reviewed. An entry with no tests counts as done.
func (e *Entry) AllTestsDone() bool {
	for _, t := range e.Tests {
		if t.Status != TestCompleted && t.Status != TestReviewed {
			return false
		}
	}
	return true
}

// AnyTestPending reports whether any recommended test is still Pending.
func (e *Entry) AnyTestPending() bool {
	for _, t := range e.Tests {
		if t.Status == TestPending {
			return true
		}
	}
	return false
}

// UnfinishedTests returns "name (status)" strings for every test that is not
// yet Completed or Reviewed, for error messages.
func (e *Entry) UnfinishedTests() []string {
	var out []string
	for _, t := range e.Tests {
		if t.Status != TestCompleted && t.Status != TestReviewed {
			out = append(out, fmt.Sprintf("%s (%s)", t.TestName, t.Status))
		}
	}
	return out
}

// AddTest appends a Pending test to the entry and returns it.
func (e *Entry) AddTest(testName string) *TestItem {
	e.Tests = append(e.Tests, TestItem{
		ID:          uuid.New(),
		DiagnosisID: e.ID,
		TestName:    testName,
		Status:      TestPending,
		AddedAt:     time.Now().UTC(),
	})
	return &e.Tests[len(e.Tests)-1]
}

// DeriveStatus is the single authority for the patient status implied by a
// set of diagnosis entries. Every mutation recomputes through it; individual
// operations may only override the result where the clinician explicitly
// supplies a status (see RecordReview).
//
//   - any entry Unchecked                    → Pre-Monitoring (awaiting first review)
//   - any Checked entry with tests           → Monitoring (results outstanding)
//   - otherwise, any entry Test Completed    → Published
//   - only medicine-only Checked entries     → Monitoring
//   - no entries at all                      → Pre-Monitoring
//
// A Checked entry with no recommended tests does not hold the patient back
// from Published: completing the last tested diagnosis publishes the patient
// even when a medicine-only sibling remains.
func DeriveStatus(entries []*Entry) string {
	if len(entries) == 0 {
		return patient.StatusPreMonitoring
	}
	testsOutstanding := false
	anyCompleted := false
	for _, e := range entries {
		switch e.Status {
		case StatusUnchecked:
			return patient.StatusPreMonitoring
		case StatusChecked:
			if len(e.Tests) > 0 {
				testsOutstanding = true
			}
		case StatusTestCompleted:
			anyCompleted = true
		}
	}
	if testsOutstanding {
		return patient.StatusMonitoring
	}
	if anyCompleted {
		return patient.StatusPublished
	}
	return patient.StatusMonitoring
}

// AllowedDoctorStatuses are the patient statuses a clinician may hand-pick
// during a review when no tests remain pending.
var AllowedDoctorStatuses = map[string]bool{
	patient.StatusPreMonitoring: true,
	patient.StatusPublished:     true,
	patient.StatusReview:        true,
	patient.StatusCompleted:     true,
	patient.StatusMonitoring:    true,
}

// filenameRe matches the upload naming convention
// <patientRef>_<LEFT|RIGHT>_<freeText>.<jpg|jpeg|png>.
var filenameRe = regexp.MustCompile(`^([A-Za-z0-9-]+)_([A-Za-z]+)_(.+)\.([A-Za-z]+)$`)

var allowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// ParseFilename validates an upload filename against the naming convention
// and returns the embedded patient reference and eye side. The side token and
// extension are case-insensitive; the side is returned uppercased.
func ParseFilename(name string) (ref, eye string, err error) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", fmt.Errorf("filename %q does not match <patientId>_<LEFT|RIGHT>_<name>.<jpg|jpeg|png>", name)
	}

	side := strings.ToUpper(m[2])
	if side != EyeLeft && side != EyeRight {
		return "", "", fmt.Errorf("filename %q: eye side must be LEFT or RIGHT, got %q", name, m[2])
	}
	if !allowedExtensions[strings.ToLower(m[4])] {
		return "", "", fmt.Errorf("filename %q: extension must be jpg, jpeg or png", name)
	}
	return m[1], side, nil
}
