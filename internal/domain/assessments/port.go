package assessments

import (
	"context"

	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// Repository port (interface for persistence)
type Repository interface {
	// Create returns ErrDuplicateAssessment when the record already has an
	// assessment. The storage layer enforces this with a unique constraint
	// on patient_record_id, which closes the check-then-create race two
	// concurrent analyze requests would otherwise hit.
	Create(ctx context.Context, a *RiskAssessment) error

	// Get is not tenant-scoped; callers authorize against the returned row.
	Get(ctx context.Context, id AssessmentID) (*RiskAssessment, error)

	// GetByRecord returns (nil, nil) when the record has no assessment.
	GetByRecord(ctx context.Context, record patients.RecordID) (*RiskAssessment, error)

	Update(ctx context.Context, a *RiskAssessment) error

	// Worklist returns PENDING_REVIEW assessments in the hospital that are
	// assigned to the doctor or unassigned, assigned-first then newest.
	Worklist(ctx context.Context, hospital tenants.HospitalID, doctor tenants.UserID, page, pageSize int) ([]*WorklistItem, error)

	// ReviewedForExport returns all REVIEWED assessments for the hospital
	// joined with panel and reviewer, ordered by review time ascending.
	ReviewedForExport(ctx context.Context, hospital tenants.HospitalID) ([]*ExportRow, error)
}

// FailureLog port records report-generation failures for auditing.
type FailureLog interface {
	Save(ctx context.Context, f *GenerationFailure) error
	ListByRecord(ctx context.Context, hospital tenants.HospitalID, record patients.RecordID, limit int) ([]*GenerationFailure, error)
}
