package mysql

import (
	"context"
	"database/sql"

	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// FailureRepository persists report-generation failures for auditing.
type FailureRepository struct {
	db *sql.DB
}

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.GenerationFailure) error {
	const q = `
INSERT INTO generation_failures (hospital_id, patient_record_id, message, created_at)
VALUES (?,?,?,?);
`
	_, err := r.db.ExecContext(ctx, q, f.HospitalID, f.RecordID, f.Message, f.CreatedAt)
	return err
}

func (r *FailureRepository) ListByRecord(ctx context.Context, hospital tenants.HospitalID, record patients.RecordID, limit int) ([]*domain.GenerationFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, hospital_id, patient_record_id, message, created_at
FROM generation_failures
WHERE hospital_id=? AND patient_record_id=?
ORDER BY created_at DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, hospital, record, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.GenerationFailure
	for rows.Next() {
		var f domain.GenerationFailure
		if err := rows.Scan(&f.ID, &f.HospitalID, &f.RecordID, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
