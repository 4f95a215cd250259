package patients

import (
	"context"
	"io"

	"github.com/clinovia/labrisk/internal/domain/tenants"
)

// Repository port (interface for persistence)
type Repository interface {
	// Create returns ErrDuplicateIdentifier when (hospital, identifier)
	// already exists.
	Create(ctx context.Context, rec *PatientRecord) error

	// BulkInsert writes all records in one transaction: either every row
	// commits or none does. Returns ErrDuplicateIdentifier on any
	// uniqueness violation.
	BulkInsert(ctx context.Context, recs []*PatientRecord) error

	// Get is deliberately not tenant-scoped: callers run the authorization
	// guard on the returned record so a cross-tenant request is denied, not
	// reported missing.
	Get(ctx context.Context, id RecordID) (*PatientRecord, error)

	List(ctx context.Context, hospital tenants.HospitalID, page, pageSize int) ([]*PatientRecord, error)
	Count(ctx context.Context, hospital tenants.HospitalID) (int64, error)
	Delete(ctx context.Context, id RecordID) error

	IdentifierExists(ctx context.Context, hospital tenants.HospitalID, identifier string) (bool, error)
	// ExistingIdentifiers returns which of the given identifiers are already
	// present for the hospital.
	ExistingIdentifiers(ctx context.Context, hospital tenants.HospitalID, identifiers []string) ([]string, error)
}

// ArchiveStore port for keeping audit copies of ingested and exported CSV
// files in object storage.
type ArchiveStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}
