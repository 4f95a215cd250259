package assessments

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/patients"
)

func TestExportReviewed(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	f := newFixture(now)

	glucose := 133.5
	reviewedAt := time.Date(2025, 5, 30, 14, 45, 0, 0, time.UTC)
	f.repo.exports = []*domain.ExportRow{
		{
			PatientIdentifier: "P001",
			Panel:             patients.Panel{Glucose: &glucose},
			Report:            "### Overall Risk Summary\nElevated glucose.",
			DoctorComments:    "agree",
			ReviewerName:      "Femi Ade",
			ReviewedAt:        &reviewedAt,
		},
		{
			// reviewer account deleted after sign-off
			PatientIdentifier: "P002",
			Report:            "### Overall Risk Summary\nAll normal.",
			DoctorComments:    "fine",
		},
	}

	filename, data, err := f.svc.ExportReviewed(context.Background(), adminA())
	if err != nil {
		t.Fatalf("ExportReviewed: %v", err)
	}
	if filename != "reviewed_reports_2025-06-02.csv" {
		t.Errorf("filename = %q", filename)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(records))
	}

	header := records[0]
	if header[0] != "Patient Identifier" || header[len(header)-1] != "Reviewed At" {
		t.Errorf("header = %v", header)
	}
	if len(header) != 17 {
		t.Errorf("header columns = %d, want 17", len(header))
	}

	row := records[1]
	if row[0] != "P001" {
		t.Errorf("identifier = %q", row[0])
	}
	if row[1] != "133.5" {
		t.Errorf("glucose cell = %q", row[1])
	}
	if row[2] != "" {
		t.Errorf("absent marker cell = %q, want empty", row[2])
	}
	if row[15] != "Femi Ade" {
		t.Errorf("reviewer = %q", row[15])
	}
	if row[16] != "2025-05-30 14:45" {
		t.Errorf("reviewed at = %q", row[16])
	}

	missing := records[2]
	if missing[15] != "N/A" || missing[16] != "N/A" {
		t.Errorf("missing reviewer cells = %q/%q, want N/A", missing[15], missing[16])
	}
}

func TestExportArchivesCopy(t *testing.T) {
	f := newFixture(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))
	if _, _, err := f.svc.ExportReviewed(context.Background(), adminA()); err != nil {
		t.Fatalf("ExportReviewed: %v", err)
	}
	if len(f.archive.keys) != 1 {
		t.Fatalf("archived %d objects, want 1", len(f.archive.keys))
	}
	if f.archive.keys[0] != "hosp-a/exports/reviewed_reports_2025-06-02.csv" {
		t.Errorf("archive key = %q", f.archive.keys[0])
	}
}

func TestExportForbiddenForDoctors(t *testing.T) {
	f := newFixture(time.Now())
	_, _, err := f.svc.ExportReviewed(context.Background(), doctorA("doc-1"))
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
