package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	domain "github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

const patientColumns = `id, hospital_id, patient_identifier,
       glucose, hba1c, total_cholesterol, ldl, hdl, triglycerides,
       alt, ast, creatinine, urea, crp, wbc,
       uploaded_by, created_at`

const insertPatientSQL = `
INSERT INTO patient_records
(id, hospital_id, patient_identifier,
 glucose, hba1c, total_cholesterol, ldl, hdl, triglycerides,
 alt, ast, creatinine, urea, crp, wbc,
 uploaded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);
`

func patientArgs(rec *domain.PatientRecord) []any {
	p := rec.Panel
	return []any{
		rec.ID, rec.HospitalID, rec.Identifier,
		nullFloat(p.Glucose), nullFloat(p.HbA1c), nullFloat(p.TotalCholesterol),
		nullFloat(p.LDL), nullFloat(p.HDL), nullFloat(p.Triglycerides),
		nullFloat(p.ALT), nullFloat(p.AST), nullFloat(p.Creatinine),
		nullFloat(p.Urea), nullFloat(p.CRP), nullFloat(p.WBC),
		rec.UploadedBy, rec.CreatedAt,
	}
}

func scanPatient(row interface{ Scan(...any) error }) (*domain.PatientRecord, error) {
	var (
		rec                    domain.PatientRecord
		glu, hba, tc, ldl, hdl sql.NullFloat64
		tri, alt, ast, cre     sql.NullFloat64
		urea, crp, wbc         sql.NullFloat64
	)
	if err := row.Scan(
		&rec.ID, &rec.HospitalID, &rec.Identifier,
		&glu, &hba, &tc, &ldl, &hdl, &tri,
		&alt, &ast, &cre, &urea, &crp, &wbc,
		&rec.UploadedBy, &rec.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.Panel = domain.Panel{
		Glucose: floatPtr(glu), HbA1c: floatPtr(hba), TotalCholesterol: floatPtr(tc),
		LDL: floatPtr(ldl), HDL: floatPtr(hdl), Triglycerides: floatPtr(tri),
		ALT: floatPtr(alt), AST: floatPtr(ast), Creatinine: floatPtr(cre),
		Urea: floatPtr(urea), CRP: floatPtr(crp), WBC: floatPtr(wbc),
	}
	return &rec, nil
}

func (r *PatientRepository) Create(ctx context.Context, rec *domain.PatientRecord) error {
	_, err := r.db.ExecContext(ctx, insertPatientSQL, patientArgs(rec)...)
	if isDuplicate(err) {
		return domain.ErrDuplicateIdentifier
	}
	return err
}

// BulkInsert writes the whole batch in one transaction; any failure rolls
// everything back so partial uploads are never observable.
func (r *PatientRepository) BulkInsert(ctx context.Context, recs []*domain.PatientRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertPatientSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, patientArgs(rec)...); err != nil {
			if isDuplicate(err) {
				return domain.ErrDuplicateIdentifier
			}
			return err
		}
	}
	return tx.Commit()
}

func (r *PatientRepository) Get(ctx context.Context, id domain.RecordID) (*domain.PatientRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patient_records WHERE id=$1 LIMIT 1;`, id)
	return scanPatient(row)
}

func (r *PatientRepository) List(ctx context.Context, hospital tenants.HospitalID, page, pageSize int) ([]*domain.PatientRecord, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 15
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT ` + patientColumns + `
FROM patient_records
WHERE hospital_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, hospital, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PatientRecord
	for rows.Next() {
		rec, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PatientRepository) Count(ctx context.Context, hospital tenants.HospitalID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patient_records WHERE hospital_id=$1;`, hospital).Scan(&count)
	return count, err
}

func (r *PatientRepository) Delete(ctx context.Context, id domain.RecordID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM patient_records WHERE id=$1;`, id)
	return err
}

func (r *PatientRepository) IdentifierExists(ctx context.Context, hospital tenants.HospitalID, identifier string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM patient_records WHERE hospital_id=$1 AND patient_identifier=$2;`,
		hospital, identifier).Scan(&n)
	return n > 0, err
}

func (r *PatientRepository) ExistingIdentifiers(ctx context.Context, hospital tenants.HospitalID, identifiers []string) ([]string, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}
	const q = `
SELECT patient_identifier FROM patient_records
WHERE hospital_id=$1 AND patient_identifier = ANY($2);
`
	rows, err := r.db.QueryContext(ctx, q, hospital, pq.Array(identifiers))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
