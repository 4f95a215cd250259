package assessments

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"

	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	"github.com/clinovia/labrisk/internal/logger"
)

const reviewedAtLayout = "2006-01-02 15:04"

// exportHeader is the fixed column order: panel columns in rule-table order,
// then report and review details.
var exportHeader = []string{
	"Patient Identifier", "Glucose", "HbA1c", "Total Cholesterol", "LDL", "HDL",
	"Triglycerides", "ALT", "AST", "Creatinine", "Urea", "CRP", "WBC",
	"AI Generated Report", "Doctor Comments", "Reviewed By (Doctor)", "Reviewed At",
}

// ExportReviewed builds the reviewed-reports CSV for the admin's hospital,
// ordered by review time ascending. A copy is archived to object storage;
// archival problems are logged, not surfaced, since the download itself
// succeeded.
func (s *Service) ExportReviewed(ctx context.Context, actor *tenants.User) (string, []byte, error) {
	if err := authz.CanExportReports(actor).Err(); err != nil {
		return "", nil, err
	}

	rows, err := s.Repo.ReviewedForExport(ctx, actor.HospitalID)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return "", nil, err
	}
	for _, row := range rows {
		if err := w.Write(exportRow(row)); err != nil {
			return "", nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", nil, err
	}

	filename := fmt.Sprintf("reviewed_reports_%s.csv", s.Clock.Now().Format("2006-01-02"))
	s.archiveExport(ctx, actor.HospitalID, filename, buf.Bytes())
	return filename, buf.Bytes(), nil
}

func exportRow(row *domain.ExportRow) []string {
	out := make([]string, 0, len(exportHeader))
	out = append(out, row.PatientIdentifier)
	for _, key := range patients.MarkerKeys() {
		out = append(out, formatMarker(row.Panel.Value(key)))
	}
	reviewer := row.ReviewerName
	if reviewer == "" {
		reviewer = "N/A"
	}
	reviewedAt := "N/A"
	if row.ReviewedAt != nil {
		reviewedAt = row.ReviewedAt.Format(reviewedAtLayout)
	}
	return append(out, row.Report, row.DoctorComments, reviewer, reviewedAt)
}

func formatMarker(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func (s *Service) archiveExport(ctx context.Context, hospital tenants.HospitalID, filename string, data []byte) {
	if s.Archive == nil {
		return
	}
	key := fmt.Sprintf("%s/exports/%s", hospital, filename)
	if _, err := s.Archive.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv"); err != nil {
		logger.WithError(err).Warn("could not archive export copy")
	}
}
