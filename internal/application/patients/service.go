package patients

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/clinovia/labrisk/internal/application"
	"github.com/clinovia/labrisk/internal/domain/authz"
	domain "github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	"github.com/clinovia/labrisk/internal/logger"
	"github.com/clinovia/labrisk/internal/middleware"
)

// Service implements patient-record use-cases: manual entry, bulk CSV
// ingestion, listing and deletion. Every operation runs the tenant guard
// before touching storage.
type Service struct {
	Repo  domain.Repository
	Clock application.Clock
}

// Command for manual patient entry
type CreateCommand struct {
	Identifier string       `json:"patient_identifier"`
	Panel      domain.Panel `json:"panel"`
}

// Create inserts one record for the actor's hospital.
func (s *Service) Create(ctx context.Context, actor *tenants.User, cmd CreateCommand) (*domain.PatientRecord, error) {
	if err := authz.CanManagePatients(actor).Err(); err != nil {
		return nil, err
	}
	identifier := strings.TrimSpace(cmd.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: patient identifier is required", domain.ErrInvalid)
	}
	if err := middleware.ValidateIdentifier(identifier); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	exists, err := s.Repo.IdentifierExists(ctx, actor.HospitalID, identifier)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrDuplicateIdentifier
	}

	rec := &domain.PatientRecord{
		ID:         domain.RecordID(uuid.New().String()),
		HospitalID: actor.HospitalID,
		Identifier: identifier,
		Panel:      cmd.Panel,
		UploadedBy: actor.ID,
		CreatedAt:  s.Clock.Now(),
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"hospital": rec.HospitalID,
		"record":   rec.ID,
	}).Info("patient record created")
	return rec, nil
}

// BulkIngest validates and inserts a batch of rows as one atomic unit. The
// checks run in a fixed order and the first failure aborts the whole batch:
//  1. empty batch
//  2. blank or malformed identifier (reported with its row position)
//  3. duplicate identifiers within the batch
//  4. identifiers already present for the hospital
//  5. marker parse failures
// Only when all rows pass does anything reach storage, in one transaction.
func (s *Service) BulkIngest(ctx context.Context, actor *tenants.User, rows []Row) ([]*domain.PatientRecord, error) {
	if err := authz.CanManagePatients(actor).Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: the CSV file is empty", domain.ErrInvalid)
	}

	identifiers := make([]string, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(row.Identifier)
		if id == "" {
			return nil, fmt.Errorf("%w: row %d is missing a patient_identifier", domain.ErrInvalid, row.Line)
		}
		if err := middleware.ValidateIdentifier(id); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrInvalid, row.Line, err)
		}
		identifiers = append(identifiers, id)
	}

	seen := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		if seen[id] {
			return nil, fmt.Errorf("%w: the file contains duplicate patient identifiers", domain.ErrInvalid)
		}
		seen[id] = true
	}

	conflicts, err := s.Repo.ExistingIdentifiers(ctx, actor.HospitalID, identifiers)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, fmt.Errorf("%w: the following patient identifiers already exist in your hospital: %s",
			domain.ErrDuplicateIdentifier, strings.Join(conflicts, ", "))
	}

	now := s.Clock.Now()
	recs := make([]*domain.PatientRecord, 0, len(rows))
	for i, row := range rows {
		panel, err := parsePanel(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, &domain.PatientRecord{
			ID:         domain.RecordID(uuid.New().String()),
			HospitalID: actor.HospitalID,
			Identifier: identifiers[i],
			Panel:      panel,
			UploadedBy: actor.ID,
			CreatedAt:  now,
		})
	}

	if err := s.Repo.BulkInsert(ctx, recs); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"hospital": actor.HospitalID,
		"rows":     len(recs),
	}).Info("bulk upload committed")
	return recs, nil
}

// Get fetches a record and runs the tenant guard against the actor.
func (s *Service) Get(ctx context.Context, actor *tenants.User, id domain.RecordID) (*domain.PatientRecord, error) {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.SameHospital(actor, rec.HospitalID).Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the actor's hospital records, newest first.
func (s *Service) List(ctx context.Context, actor *tenants.User, page, pageSize int) (domain.PaginatedRecords, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 15
	}
	recs, err := s.Repo.List(ctx, actor.HospitalID, page, pageSize)
	if err != nil {
		return domain.PaginatedRecords{}, err
	}
	total, err := s.Repo.Count(ctx, actor.HospitalID)
	if err != nil {
		return domain.PaginatedRecords{}, err
	}
	return domain.PaginatedRecords{
		Data:       recs,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Delete removes a record after the admin + tenant checks.
func (s *Service) Delete(ctx context.Context, actor *tenants.User, id domain.RecordID) error {
	rec, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CanDeleteRecord(actor, rec).Err(); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"hospital":   rec.HospitalID,
		"identifier": rec.Identifier,
	}).Info("patient record deleted")
	return nil
}

// parsePanel converts raw marker text to numbers. Blank cells become absent
// values; anything else must parse as a float.
func parsePanel(row Row) (domain.Panel, error) {
	var panel domain.Panel
	for key, raw := range row.Markers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Panel{}, fmt.Errorf("%w: row %d has a non-numeric value %q for %s",
				domain.ErrInvalid, row.Line, raw, key)
		}
		panel.Set(key, &v)
	}
	return panel, nil
}
