package assessments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinovia/labrisk/internal/application"
	"github.com/clinovia/labrisk/internal/domain/ai"
	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	"github.com/clinovia/labrisk/internal/logger"
)

// Service implements the assessment workflow: analyze, assign, review,
// worklist, export.
type Service struct {
	Repo     domain.Repository
	Patients patients.Repository
	Users    tenants.Repository
	AI       ai.Client
	Failures domain.FailureLog
	Archive  patients.ArchiveStore
	Clock    application.Clock
}

// Analyze generates a report for a patient record and stores it as a
// PENDING_REVIEW assessment. At most one assessment may ever exist per
// record; the repository's unique constraint backs the existence check here.
func (s *Service) Analyze(ctx context.Context, actor *tenants.User, recordID patients.RecordID) (*domain.RiskAssessment, error) {
	rec, err := s.Patients.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanAnalyzeRecord(actor, rec).Err(); err != nil {
		return nil, err
	}

	existing, err := s.Repo.GetByRecord(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateAssessment
	}

	report, genErr := s.generateReport(ctx, rec)
	if genErr != nil {
		// quota failures keep their identity so the caller can retry later
		return nil, genErr
	}
	if domain.IsErrorReport(report) {
		return nil, fmt.Errorf("%w: %s", domain.ErrGenerationFailed, report)
	}

	a := &domain.RiskAssessment{
		ID:         domain.AssessmentID(uuid.New().String()),
		RecordID:   rec.ID,
		HospitalID: rec.HospitalID,
		Report:     report,
		Status:     domain.StatusPendingReview,
		CreatedAt:  s.Clock.Now(),
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"hospital":   a.HospitalID,
		"assessment": a.ID,
		"record":     a.RecordID,
	}).Info("assessment created")
	return a, nil
}

// generateReport calls the model and sanitizes its output. Service-layer
// failures never surface as errors: they come back as an Error:-prefixed
// report value, except quota exhaustion which keeps its sentinel. The raw
// failure is also written to the generation-failure audit log.
func (s *Service) generateReport(ctx context.Context, rec *patients.PatientRecord) (string, error) {
	raw, err := s.AI.GenerateReport(ctx, rec)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"hospital": rec.HospitalID,
			"record":   rec.ID,
		}).WithError(err).Error("report generation failed")
		s.logFailure(ctx, rec, err)
		if errors.Is(err, ai.ErrQuotaExceeded) {
			return "", err
		}
		return domain.ErrorReport(fmt.Sprintf(
			"Could not generate AI assessment. Please try again later. Details: %v", err)), nil
	}
	return domain.CleanReport(raw), nil
}

func (s *Service) logFailure(ctx context.Context, rec *patients.PatientRecord, cause error) {
	if s.Failures == nil {
		return
	}
	err := s.Failures.Save(ctx, &domain.GenerationFailure{
		HospitalID: rec.HospitalID,
		RecordID:   rec.ID,
		Message:    cause.Error(),
		CreatedAt:  s.Clock.Now(),
	})
	if err != nil {
		logger.WithError(err).Warn("could not persist generation failure")
	}
}

// ListFailures returns the generation-failure audit trail for a record, for
// an admin of the owning hospital.
func (s *Service) ListFailures(ctx context.Context, actor *tenants.User, recordID patients.RecordID, limit int) ([]*domain.GenerationFailure, error) {
	rec, err := s.Patients.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := authz.CanAnalyzeRecord(actor, rec).Err(); err != nil {
		return nil, err
	}
	if s.Failures == nil {
		return nil, nil
	}
	return s.Failures.ListByRecord(ctx, rec.HospitalID, rec.ID, limit)
}

// Detail is the assessment view: the stored report together with its record
// and the deterministic per-marker classification.
type Detail struct {
	Assessment *domain.RiskAssessment  `json:"assessment"`
	Record     *patients.PatientRecord `json:"record"`
	Findings   []patients.Finding      `json:"findings"`
}

// Get fetches an assessment, guarded per role: same hospital always, and a
// doctor may not open a report assigned to someone else.
func (s *Service) Get(ctx context.Context, actor *tenants.User, id domain.AssessmentID) (*Detail, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanViewAssessment(actor, a).Err(); err != nil {
		return nil, err
	}
	rec, err := s.Patients.Get(ctx, a.RecordID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		Assessment: a,
		Record:     rec,
		Findings:   patients.Classify(rec.Panel),
	}, nil
}

// Assign sets the assigned doctor. The target is re-validated server-side:
// it must be a DOCTOR belonging to the actor's hospital, whatever the client
// sent. Re-assignment overwrites.
func (s *Service) Assign(ctx context.Context, actor *tenants.User, id domain.AssessmentID, doctorID tenants.UserID) (*domain.RiskAssessment, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanAssignDoctor(actor, a).Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(doctorID)) == "" {
		return nil, fmt.Errorf("%w: no doctor was selected", domain.ErrInvalid)
	}

	doctor, err := s.Users.GetUser(ctx, doctorID)
	if err != nil && !errors.Is(err, tenants.ErrNotFound) {
		return nil, err
	}
	if err != nil || doctor.HospitalID != actor.HospitalID || doctor.Role != tenants.RoleDoctor {
		return nil, fmt.Errorf("%w: the selected doctor could not be found or is invalid", domain.ErrInvalid)
	}

	a.Assign(doctor.ID)
	if err := s.Repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Review submits the doctor's sign-off, flipping PENDING_REVIEW to REVIEWED.
func (s *Service) Review(ctx context.Context, actor *tenants.User, id domain.AssessmentID, comments string) (*domain.RiskAssessment, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanReviewAssessment(actor, a).Err(); err != nil {
		return nil, err
	}
	comments = strings.TrimSpace(comments)
	if comments == "" {
		return nil, fmt.Errorf("%w: review comments are required", domain.ErrInvalid)
	}
	if err := a.SubmitReview(actor.ID, comments, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, a); err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"hospital":   a.HospitalID,
		"assessment": a.ID,
		"reviewer":   actor.ID,
	}).Info("assessment reviewed")
	return a, nil
}

// Worklist returns the doctor's pending queue: assigned to them or
// unassigned, within their hospital, assigned-first then newest.
func (s *Service) Worklist(ctx context.Context, actor *tenants.User, page, pageSize int) ([]*domain.WorklistItem, error) {
	if err := authz.CanViewWorklist(actor).Err(); err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return s.Repo.Worklist(ctx, actor.HospitalID, actor.ID, page, pageSize)
}
