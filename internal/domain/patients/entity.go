package patients

import (
	"time"

	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// RecordID identifier type
type RecordID string

// Panel holds the twelve lab marker values for one patient snapshot.
// A nil field means the marker was not measured; it is never treated as zero.
type Panel struct {
	Glucose          *float64 `json:"glucose,omitempty"`
	HbA1c            *float64 `json:"hba1c,omitempty"`
	TotalCholesterol *float64 `json:"total_cholesterol,omitempty"`
	LDL              *float64 `json:"ldl,omitempty"`
	HDL              *float64 `json:"hdl,omitempty"`
	Triglycerides    *float64 `json:"triglycerides,omitempty"`
	ALT              *float64 `json:"alt,omitempty"`
	AST              *float64 `json:"ast,omitempty"`
	Creatinine       *float64 `json:"creatinine,omitempty"`
	Urea             *float64 `json:"urea,omitempty"`
	CRP              *float64 `json:"crp,omitempty"`
	WBC              *float64 `json:"wbc,omitempty"`
}

// Value returns the panel field for a marker key, nil when absent or unknown.
func (p *Panel) Value(key string) *float64 {
	switch key {
	case "glucose":
		return p.Glucose
	case "hba1c":
		return p.HbA1c
	case "total_cholesterol":
		return p.TotalCholesterol
	case "ldl":
		return p.LDL
	case "hdl":
		return p.HDL
	case "triglycerides":
		return p.Triglycerides
	case "alt":
		return p.ALT
	case "ast":
		return p.AST
	case "creatinine":
		return p.Creatinine
	case "urea":
		return p.Urea
	case "crp":
		return p.CRP
	case "wbc":
		return p.WBC
	}
	return nil
}

// Set assigns the panel field for a marker key. Unknown keys are ignored.
func (p *Panel) Set(key string, v *float64) {
	switch key {
	case "glucose":
		p.Glucose = v
	case "hba1c":
		p.HbA1c = v
	case "total_cholesterol":
		p.TotalCholesterol = v
	case "ldl":
		p.LDL = v
	case "hdl":
		p.HDL = v
	case "triglycerides":
		p.Triglycerides = v
	case "alt":
		p.ALT = v
	case "ast":
		p.AST = v
	case "creatinine":
		p.Creatinine = v
	case "urea":
		p.Urea = v
	case "crp":
		p.CRP = v
	case "wbc":
		p.WBC = v
	}
}

// Aggregate Root: PatientRecord, one lab panel snapshot.
// (hospital_id, patient_identifier) is unique; the record is immutable after
// creation except for deletion by an admin of the owning hospital.
type PatientRecord struct {
	ID         RecordID           `json:"id"`
	HospitalID tenants.HospitalID `json:"hospital_id"`
	Identifier string             `json:"patient_identifier"`
	Panel      Panel              `json:"panel"`
	UploadedBy tenants.UserID     `json:"uploaded_by"`
	CreatedAt  time.Time          `json:"created_at"`
}
