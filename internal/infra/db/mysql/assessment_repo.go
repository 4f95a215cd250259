package mysql

import (
	"context"
	"database/sql"
	"strings"

	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

type AssessmentRepository struct {
	db *sql.DB
}

func NewAssessmentRepository(db *sql.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

const assessmentColumns = `id, patient_record_id, hospital_id, report, status,
       assigned_doctor, reviewed_by, reviewed_at, doctor_comments, created_at`

func scanAssessment(row interface{ Scan(...any) error }) (*domain.RiskAssessment, error) {
	var (
		a                    domain.RiskAssessment
		assigned, reviewedBy sql.NullString
		reviewedAt           sql.NullTime
		comments             sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.RecordID, &a.HospitalID, &a.Report, &a.Status,
		&assigned, &reviewedBy, &reviewedAt, &comments, &a.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if assigned.Valid {
		id := tenants.UserID(assigned.String)
		a.AssignedDoctor = &id
	}
	if reviewedBy.Valid {
		id := tenants.UserID(reviewedBy.String)
		a.ReviewedBy = &id
	}
	a.ReviewedAt = timePtr(reviewedAt)
	a.DoctorComments = comments.String
	return &a, nil
}

func assessmentArgs(a *domain.RiskAssessment) []any {
	var assigned, reviewedBy sql.NullString
	if a.AssignedDoctor != nil {
		assigned = nullString(string(*a.AssignedDoctor))
	}
	if a.ReviewedBy != nil {
		reviewedBy = nullString(string(*a.ReviewedBy))
	}
	return []any{
		a.Report, a.Status, assigned, reviewedBy, nullTime(a.ReviewedAt), nullString(a.DoctorComments),
	}
}

// Create relies on the unique constraint on patient_record_id to enforce the
// one-assessment-per-record invariant even under concurrent requests.
func (r *AssessmentRepository) Create(ctx context.Context, a *domain.RiskAssessment) error {
	const q = `
INSERT INTO risk_assessments
(id, patient_record_id, hospital_id, report, status,
 assigned_doctor, reviewed_by, reviewed_at, doctor_comments, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?);
`
	args := append([]any{a.ID, a.RecordID, a.HospitalID}, assessmentArgs(a)...)
	args = append(args, a.CreatedAt)
	_, err := r.db.ExecContext(ctx, q, args...)
	if isDuplicate(err) {
		return domain.ErrDuplicateAssessment
	}
	return err
}

func (r *AssessmentRepository) Get(ctx context.Context, id domain.AssessmentID) (*domain.RiskAssessment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM risk_assessments WHERE id=? LIMIT 1;`, id)
	return scanAssessment(row)
}

func (r *AssessmentRepository) GetByRecord(ctx context.Context, record patients.RecordID) (*domain.RiskAssessment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM risk_assessments WHERE patient_record_id=? LIMIT 1;`, record)
	a, err := scanAssessment(row)
	if err == domain.ErrNotFound {
		return nil, nil
	}
	return a, err
}

func (r *AssessmentRepository) Update(ctx context.Context, a *domain.RiskAssessment) error {
	const q = `
UPDATE risk_assessments
SET report=?, status=?, assigned_doctor=?, reviewed_by=?, reviewed_at=?, doctor_comments=?
WHERE id=?;
`
	args := append(assessmentArgs(a), a.ID)
	_, err := r.db.ExecContext(ctx, q, args...)
	return err
}

// Worklist: pending assessments assigned to the doctor or unassigned,
// assigned-first then newest record.
func (r *AssessmentRepository) Worklist(ctx context.Context, hospital tenants.HospitalID, doctor tenants.UserID, page, pageSize int) ([]*domain.WorklistItem, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT a.id, a.patient_record_id, a.hospital_id, a.report, a.status,
       a.assigned_doctor, a.reviewed_by, a.reviewed_at, a.doctor_comments, a.created_at,
       p.patient_identifier
FROM risk_assessments a
JOIN patient_records p ON p.id = a.patient_record_id
WHERE a.hospital_id=? AND a.status=?
  AND (a.assigned_doctor=? OR a.assigned_doctor IS NULL)
ORDER BY (a.assigned_doctor IS NULL), p.created_at DESC, a.id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, hospital, domain.StatusPendingReview, doctor, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WorklistItem
	for rows.Next() {
		var (
			a                    domain.RiskAssessment
			assigned, reviewedBy sql.NullString
			reviewedAt           sql.NullTime
			comments             sql.NullString
			identifier           string
		)
		if err := rows.Scan(
			&a.ID, &a.RecordID, &a.HospitalID, &a.Report, &a.Status,
			&assigned, &reviewedBy, &reviewedAt, &comments, &a.CreatedAt,
			&identifier,
		); err != nil {
			return nil, err
		}
		if assigned.Valid {
			id := tenants.UserID(assigned.String)
			a.AssignedDoctor = &id
		}
		if reviewedBy.Valid {
			id := tenants.UserID(reviewedBy.String)
			a.ReviewedBy = &id
		}
		a.ReviewedAt = timePtr(reviewedAt)
		a.DoctorComments = comments.String
		item := domain.WorklistItem{Assessment: &a, PatientIdentifier: identifier}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// ReviewedForExport joins panel, report and reviewer for the CSV export,
// ordered by review time ascending.
func (r *AssessmentRepository) ReviewedForExport(ctx context.Context, hospital tenants.HospitalID) ([]*domain.ExportRow, error) {
	const q = `
SELECT p.patient_identifier,
       p.glucose, p.hba1c, p.total_cholesterol, p.ldl, p.hdl, p.triglycerides,
       p.alt, p.ast, p.creatinine, p.urea, p.crp, p.wbc,
       a.report, a.doctor_comments, u.first_name, u.last_name, a.reviewed_at
FROM risk_assessments a
JOIN patient_records p ON p.id = a.patient_record_id
LEFT JOIN users u ON u.id = a.reviewed_by
WHERE a.hospital_id=? AND a.status=?
ORDER BY a.reviewed_at ASC, a.id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, hospital, domain.StatusReviewed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ExportRow
	for rows.Next() {
		var (
			row                    domain.ExportRow
			glu, hba, tc, ldl, hdl sql.NullFloat64
			tri, alt, ast, cre     sql.NullFloat64
			urea, crp, wbc         sql.NullFloat64
			comments               sql.NullString
			first, last            sql.NullString
			reviewedAt             sql.NullTime
		)
		if err := rows.Scan(
			&row.PatientIdentifier,
			&glu, &hba, &tc, &ldl, &hdl, &tri,
			&alt, &ast, &cre, &urea, &crp, &wbc,
			&row.Report, &comments, &first, &last, &reviewedAt,
		); err != nil {
			return nil, err
		}
		row.Panel = patients.Panel{
			Glucose: floatPtr(glu), HbA1c: floatPtr(hba), TotalCholesterol: floatPtr(tc),
			LDL: floatPtr(ldl), HDL: floatPtr(hdl), Triglycerides: floatPtr(tri),
			ALT: floatPtr(alt), AST: floatPtr(ast), Creatinine: floatPtr(cre),
			Urea: floatPtr(urea), CRP: floatPtr(crp), WBC: floatPtr(wbc),
		}
		row.DoctorComments = comments.String
		row.ReviewerName = strings.TrimSpace(first.String + " " + last.String)
		row.ReviewedAt = timePtr(reviewedAt)
		out = append(out, &row)
	}
	return out, rows.Err()
}
