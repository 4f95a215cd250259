package assessments

import (
	"time"

	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// AssessmentID identifier type
type AssessmentID string

// Status enum. PENDING_REVIEW is the initial state, REVIEWED is terminal.
type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusReviewed      Status = "REVIEWED"
)

// Aggregate Root: RiskAssessment, one-to-one with a PatientRecord.
// The hospital is denormalized from the record so every query and guard can
// scope without a join.
type RiskAssessment struct {
	ID             AssessmentID       `json:"id"`
	RecordID       patients.RecordID  `json:"patient_record_id"`
	HospitalID     tenants.HospitalID `json:"hospital_id"`
	Report         string             `json:"report"`
	Status         Status             `json:"status"`
	AssignedDoctor *tenants.UserID    `json:"assigned_doctor,omitempty"`
	ReviewedBy     *tenants.UserID    `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time         `json:"reviewed_at,omitempty"`
	DoctorComments string             `json:"doctor_comments,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Assign sets or overwrites the assigned doctor. Re-assignment is idempotent
// and never touches status. Callers validate hospital and role membership.
func (a *RiskAssessment) Assign(doctor tenants.UserID) {
	a.AssignedDoctor = &doctor
}

// SubmitReview flips the assessment to REVIEWED. Only a PENDING_REVIEW
// assessment can be reviewed; a second submission is rejected rather than
// silently overwriting the first doctor's sign-off.
func (a *RiskAssessment) SubmitReview(doctor tenants.UserID, comments string, now time.Time) error {
	if a.Status == StatusReviewed {
		return ErrAlreadyReviewed
	}
	a.Status = StatusReviewed
	a.ReviewedBy = &doctor
	a.ReviewedAt = &now
	a.DoctorComments = comments
	return nil
}

// WorklistItem is one row of a doctor's pending-review queue.
type WorklistItem struct {
	Assessment        *RiskAssessment `json:"assessment"`
	PatientIdentifier string          `json:"patient_identifier"`
}

// ExportRow is one row of the reviewed-reports export: the patient panel
// joined with the report and review details.
type ExportRow struct {
	PatientIdentifier string
	Panel             patients.Panel
	Report            string
	DoctorComments    string
	ReviewerName      string
	ReviewedAt        *time.Time
}
