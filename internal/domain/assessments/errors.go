package assessments

import "errors"

var (
	// ErrNotFound is returned when an assessment does not exist.
	ErrNotFound = errors.New("assessment not found")

	// ErrDuplicateAssessment enforces the one-assessment-per-record invariant.
	ErrDuplicateAssessment = errors.New("an assessment already exists for this patient record")

	// ErrAlreadyReviewed rejects a review submission against a REVIEWED
	// assessment.
	ErrAlreadyReviewed = errors.New("assessment has already been reviewed")

	// ErrGenerationFailed wraps an Error:-prefixed report; no assessment row
	// is created when generation fails.
	ErrGenerationFailed = errors.New("report generation failed")

	// ErrInvalid marks bad review or assignment input.
	ErrInvalid = errors.New("invalid assessment input")
)
