package ai

import (
	"context"

	"github.com/clinovia/labrisk/internal/domain/patients"
)

// Client is the narrative-generation collaborator. It returns the raw model
// output; sanitization happens on the caller's side.
type Client interface {
	GenerateReport(ctx context.Context, rec *patients.PatientRecord) (string, error)
}
