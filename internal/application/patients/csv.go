package patients

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	domain "github.com/clinovia/labrisk/internal/domain/patients"
)

// Row is one data row of an uploaded CSV, before any parsing of marker
// values. Line is the 1-based position in the file, header included, so
// error messages point at the row the admin sees in a spreadsheet.
type Row struct {
	Line       int
	Identifier string
	Markers    map[string]string
}

// ParseCSV decodes an uploaded file into rows. It enforces the upload
// contract: a .csv filename, a header containing patient_identifier, and no
// columns outside the twelve-marker panel. Marker headers are matched
// case-insensitively.
func ParseCSV(filename string, r io.Reader) ([]Row, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, fmt.Errorf("%w: invalid file type, please upload a .csv file", domain.ErrInvalid)
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: the CSV file is empty", domain.ErrInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable CSV header: %v", domain.ErrInvalid, err)
	}

	known := make(map[string]bool, len(domain.MarkerRules))
	for _, key := range domain.MarkerKeys() {
		known[key] = true
	}

	idCol := -1
	cols := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "patient_identifier" {
			idCol = i
			continue
		}
		if !known[name] {
			return nil, fmt.Errorf("%w: unknown column %q", domain.ErrInvalid, strings.TrimSpace(h))
		}
		cols[i] = name
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w: missing required patient_identifier column", domain.ErrInvalid)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: row %d is malformed: %v", domain.ErrInvalid, line, err)
		}
		row := Row{Line: line, Markers: make(map[string]string)}
		for i, v := range record {
			if i == idCol {
				row.Identifier = v
				continue
			}
			if i < len(cols) && cols[i] != "" {
				row.Markers[cols[i]] = v
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: the CSV file is empty", domain.ErrInvalid)
	}
	return rows, nil
}
