package patients

import "errors"

var (
	// ErrNotFound is returned when a patient record does not exist.
	ErrNotFound = errors.New("patient record not found")

	// ErrDuplicateIdentifier indicates a (hospital, patient_identifier)
	// uniqueness violation.
	ErrDuplicateIdentifier = errors.New("patient identifier already exists in this hospital")

	// ErrInvalid marks bad input: blank identifiers, unparseable marker
	// values, malformed CSV batches.
	ErrInvalid = errors.New("invalid patient data")
)
