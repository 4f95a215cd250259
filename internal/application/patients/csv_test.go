package patients

import (
	"errors"
	"strings"
	"testing"

	domain "github.com/clinovia/labrisk/internal/domain/patients"
)

func TestParseCSV(t *testing.T) {
	in := "patient_identifier,glucose,hba1c\nP001,130,5.9\nP002,,6.6\n"
	rows, err := ParseCSV("panel.csv", strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Line != 2 || rows[1].Line != 3 {
		t.Errorf("line numbers = %d,%d, want 2,3", rows[0].Line, rows[1].Line)
	}
	if rows[0].Identifier != "P001" {
		t.Errorf("identifier = %q", rows[0].Identifier)
	}
	if rows[0].Markers["glucose"] != "130" || rows[0].Markers["hba1c"] != "5.9" {
		t.Errorf("markers = %v", rows[0].Markers)
	}
	if rows[1].Markers["glucose"] != "" {
		t.Errorf("blank cell should stay blank, got %q", rows[1].Markers["glucose"])
	}
}

func TestParseCSVHeaderCaseInsensitive(t *testing.T) {
	in := "Patient_Identifier, GLUCOSE\nP001,110\n"
	rows, err := ParseCSV("panel.csv", strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if rows[0].Markers["glucose"] != "110" {
		t.Errorf("markers = %v", rows[0].Markers)
	}
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		body     string
	}{
		{"wrong extension", "panel.txt", "patient_identifier\nP001\n"},
		{"empty file", "panel.csv", ""},
		{"header only", "panel.csv", "patient_identifier,glucose\n"},
		{"missing identifier column", "panel.csv", "glucose,hba1c\n130,5.9\n"},
		{"unknown column", "panel.csv", "patient_identifier,cholesterol_total\nP001,190\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(tt.filename, strings.NewReader(tt.body))
			if !errors.Is(err, domain.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
