package assessments

import (
	"time"

	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// GenerationFailure is a persisted record of a failed report-generation
// attempt. The request itself surfaces the error to the admin; this row keeps
// an audit trail of flaky model-side behavior.
type GenerationFailure struct {
	ID         int64              `json:"id"`
	HospitalID tenants.HospitalID `json:"hospital_id"`
	RecordID   patients.RecordID  `json:"patient_record_id"`
	Message    string             `json:"message"`
	CreatedAt  time.Time          `json:"created_at"`
}
