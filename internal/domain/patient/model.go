// Package patient holds the patient aggregate root: demographics, the
// monitoring status that governs which work queue the patient appears in,
// disease-category tags, and the medical history.
package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient statuses. A patient moves Pre-Monitoring → Monitoring → Review →
// Completed or Published as their diagnoses progress.
const (
	StatusPreMonitoring = "Pre-Monitoring"
	StatusMonitoring    = "Monitoring"
	StatusReview        = "Review"
	StatusCompleted     = "Completed"
	StatusPublished     = "Published"
)

// ValidStatuses lists every legal patientStatus value.
var ValidStatuses = map[string]bool{
	StatusPreMonitoring: true,
	StatusMonitoring:    true,
	StatusReview:        true,
	StatusCompleted:     true,
	StatusPublished:     true,
}

// Disease categories screened by the clinic.
const (
	CategoryDR       = "DR"
	CategoryAMD      = "AMD"
	CategoryGlaucoma = "Glaucoma"
	CategoryRVO      = "RVO"
	CategoryOthers   = "Others"
)

// ValidCategories lists every legal disease-category tag.
var ValidCategories = map[string]bool{
	CategoryDR:       true,
	CategoryAMD:      true,
	CategoryGlaucoma: true,
	CategoryRVO:      true,
	CategoryOthers:   true,
}

// Patient maps to the patient table.
type Patient struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientRef    string     `db:"patient_ref" json:"patient_ref"`
	Name          string     `db:"name" json:"name"`
	NIC           string     `db:"nic" json:"nic"`
	BirthDate     *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender        *string    `db:"gender" json:"gender,omitempty"`
	ContactNumber *string    `db:"contact_number" json:"contact_number,omitempty"`
	Email         *string    `db:"email" json:"email,omitempty"`
	Address       *string    `db:"address" json:"address,omitempty"`
	Status        string     `db:"status" json:"status"`
	Categories    []string   `db:"categories" json:"categories"`
	VersionID     int        `db:"version_id" json:"version_id"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Age computes the patient's age in whole years, or -1 when the birth date
// is unknown.
func (p *Patient) Age(now time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	years := now.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return years
}

// AddCategory unions a disease category into the patient's tag set. The set
// only grows; removing a diagnosis never removes its tag.
func (p *Patient) AddCategory(category string) {
	for _, c := range p.Categories {
		if c == category {
			return
		}
	}
	p.Categories = append(p.Categories, category)
}

// HasCategory reports whether the tag set contains the category.
func (p *Patient) HasCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// MedicalHistoryEntry maps to the medical_history table. History entries are
// unrelated to the diagnosis lifecycle.
type MedicalHistoryEntry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Condition   string     `db:"condition_name" json:"condition"`
	Medications []string   `db:"medications" json:"medications,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	DiagnosedAt *time.Time `db:"diagnosed_at" json:"diagnosed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
