package assessments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/clinovia/labrisk/internal/domain/ai"
	domain "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakeAssessmentRepo struct {
	byID     map[domain.AssessmentID]*domain.RiskAssessment
	byRecord map[patients.RecordID]*domain.RiskAssessment
	exports  []*domain.ExportRow
}

func newFakeAssessmentRepo() *fakeAssessmentRepo {
	return &fakeAssessmentRepo{
		byID:     make(map[domain.AssessmentID]*domain.RiskAssessment),
		byRecord: make(map[patients.RecordID]*domain.RiskAssessment),
	}
}

func (r *fakeAssessmentRepo) Create(_ context.Context, a *domain.RiskAssessment) error {
	if _, ok := r.byRecord[a.RecordID]; ok {
		return domain.ErrDuplicateAssessment
	}
	r.byID[a.ID] = a
	r.byRecord[a.RecordID] = a
	return nil
}

func (r *fakeAssessmentRepo) Get(_ context.Context, id domain.AssessmentID) (*domain.RiskAssessment, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (r *fakeAssessmentRepo) GetByRecord(_ context.Context, record patients.RecordID) (*domain.RiskAssessment, error) {
	return r.byRecord[record], nil
}

func (r *fakeAssessmentRepo) Update(_ context.Context, a *domain.RiskAssessment) error {
	r.byID[a.ID] = a
	r.byRecord[a.RecordID] = a
	return nil
}

func (r *fakeAssessmentRepo) Worklist(_ context.Context, hospital tenants.HospitalID, doctor tenants.UserID, page, pageSize int) ([]*domain.WorklistItem, error) {
	var out []*domain.WorklistItem
	for _, a := range r.byID {
		if a.HospitalID != hospital || a.Status != domain.StatusPendingReview {
			continue
		}
		if a.AssignedDoctor != nil && *a.AssignedDoctor != doctor {
			continue
		}
		out = append(out, &domain.WorklistItem{Assessment: a, PatientIdentifier: string(a.RecordID)})
	}
	return out, nil
}

func (r *fakeAssessmentRepo) ReviewedForExport(_ context.Context, hospital tenants.HospitalID) ([]*domain.ExportRow, error) {
	return r.exports, nil
}

type fakePatientStore struct {
	records map[patients.RecordID]*patients.PatientRecord
}

func (r *fakePatientStore) Create(_ context.Context, rec *patients.PatientRecord) error {
	r.records[rec.ID] = rec
	return nil
}
func (r *fakePatientStore) BulkInsert(_ context.Context, recs []*patients.PatientRecord) error {
	for _, rec := range recs {
		r.records[rec.ID] = rec
	}
	return nil
}
func (r *fakePatientStore) Get(_ context.Context, id patients.RecordID) (*patients.PatientRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, patients.ErrNotFound
	}
	return rec, nil
}
func (r *fakePatientStore) List(_ context.Context, _ tenants.HospitalID, _, _ int) ([]*patients.PatientRecord, error) {
	return nil, nil
}
func (r *fakePatientStore) Count(_ context.Context, _ tenants.HospitalID) (int64, error) {
	return 0, nil
}
func (r *fakePatientStore) Delete(_ context.Context, id patients.RecordID) error {
	delete(r.records, id)
	return nil
}
func (r *fakePatientStore) IdentifierExists(_ context.Context, _ tenants.HospitalID, _ string) (bool, error) {
	return false, nil
}
func (r *fakePatientStore) ExistingIdentifiers(_ context.Context, _ tenants.HospitalID, _ []string) ([]string, error) {
	return nil, nil
}

type fakeUserStore struct {
	users map[tenants.UserID]*tenants.User
}

func (r *fakeUserStore) CreateHospitalWithAdmin(_ context.Context, _ *tenants.Hospital, _ *tenants.User) error {
	return nil
}
func (r *fakeUserStore) CreateUser(_ context.Context, u *tenants.User) error {
	r.users[u.ID] = u
	return nil
}
func (r *fakeUserStore) GetUser(_ context.Context, id tenants.UserID) (*tenants.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return u, nil
}
func (r *fakeUserStore) GetUserByEmail(_ context.Context, _ string) (*tenants.User, error) {
	return nil, tenants.ErrNotFound
}
func (r *fakeUserStore) ListDoctors(_ context.Context, _ tenants.HospitalID) ([]*tenants.User, error) {
	return nil, nil
}

type fakeAI struct {
	report string
	err    error
	calls  int
}

func (c *fakeAI) GenerateReport(_ context.Context, _ *patients.PatientRecord) (string, error) {
	c.calls++
	return c.report, c.err
}

type fakeFailureLog struct {
	saved []*domain.GenerationFailure
}

func (l *fakeFailureLog) Save(_ context.Context, f *domain.GenerationFailure) error {
	l.saved = append(l.saved, f)
	return nil
}
func (l *fakeFailureLog) ListByRecord(_ context.Context, _ tenants.HospitalID, _ patients.RecordID, _ int) ([]*domain.GenerationFailure, error) {
	return l.saved, nil
}

type fakeArchive struct {
	keys []string
}

func (a *fakeArchive) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	_, _ = io.ReadAll(r)
	a.keys = append(a.keys, key)
	return "https://archive/" + key, nil
}

type fixture struct {
	svc      *Service
	repo     *fakeAssessmentRepo
	ai       *fakeAI
	failures *fakeFailureLog
	archive  *fakeArchive
}

func newFixture(now time.Time) *fixture {
	glucose := 140.0
	record := &patients.PatientRecord{
		ID:         "rec-1",
		HospitalID: "hosp-a",
		Identifier: "P001",
		Panel:      patients.Panel{Glucose: &glucose},
	}
	repo := newFakeAssessmentRepo()
	aiClient := &fakeAI{report: "### Overall Risk Summary\nElevated glucose."}
	failures := &fakeFailureLog{}
	archive := &fakeArchive{}
	users := &fakeUserStore{users: map[tenants.UserID]*tenants.User{
		"doc-1": {ID: "doc-1", HospitalID: "hosp-a", Role: tenants.RoleDoctor},
		"doc-2": {ID: "doc-2", HospitalID: "hosp-a", Role: tenants.RoleDoctor},
		"doc-b": {ID: "doc-b", HospitalID: "hosp-b", Role: tenants.RoleDoctor},
	}}
	svc := &Service{
		Repo:     repo,
		Patients: &fakePatientStore{records: map[patients.RecordID]*patients.PatientRecord{record.ID: record}},
		Users:    users,
		AI:       aiClient,
		Failures: failures,
		Archive:  archive,
		Clock:    fixedClock{now},
	}
	return &fixture{svc: svc, repo: repo, ai: aiClient, failures: failures, archive: archive}
}

func adminA() *tenants.User {
	return &tenants.User{ID: "admin-1", HospitalID: "hosp-a", Role: tenants.RoleHospitalAdmin}
}

func doctorA(id tenants.UserID) *tenants.User {
	return &tenants.User{ID: id, HospitalID: "hosp-a", Role: tenants.RoleDoctor}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()

	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Status != domain.StatusPendingReview {
		t.Errorf("status = %s, want %s", a.Status, domain.StatusPendingReview)
	}
	if a.HospitalID != "hosp-a" {
		t.Errorf("hospital = %s", a.HospitalID)
	}
	if !strings.HasPrefix(a.Report, "### Overall Risk Summary") {
		t.Errorf("report = %q", a.Report)
	}
}

func TestAnalyzeSanitizesModelOutput(t *testing.T) {
	f := newFixture(time.Now())
	f.ai.report = "Certainly! Here you go.\n\n### Overall Risk Summary\nElevated glucose.\n```"

	a, err := f.svc.Analyze(context.Background(), adminA(), "rec-1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if strings.Contains(a.Report, "Certainly") || strings.Contains(a.Report, "```") {
		t.Errorf("report not sanitized: %q", a.Report)
	}
}

func TestAnalyzeRejectsSecondAssessment(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	if _, err := f.svc.Analyze(ctx, adminA(), "rec-1"); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	_, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if !errors.Is(err, domain.ErrDuplicateAssessment) {
		t.Fatalf("err = %v, want ErrDuplicateAssessment", err)
	}
	if f.ai.calls != 1 {
		t.Errorf("model called %d times, want 1 (duplicate short-circuits before generation)", f.ai.calls)
	}
}

func TestAnalyzeGenerationFailure(t *testing.T) {
	f := newFixture(time.Now())
	f.ai.report = ""
	f.ai.err = fmt.Errorf("connection reset")

	_, err := f.svc.Analyze(context.Background(), adminA(), "rec-1")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if len(f.repo.byID) != 0 {
		t.Error("no assessment row may exist after a failed generation")
	}
	if len(f.failures.saved) != 1 {
		t.Errorf("failure log entries = %d, want 1", len(f.failures.saved))
	}
	if !strings.Contains(err.Error(), "Could not generate AI assessment") {
		t.Errorf("error %q should carry the user-facing message", err)
	}
}

func TestAnalyzeQuotaKeepsSentinel(t *testing.T) {
	f := newFixture(time.Now())
	f.ai.err = fmt.Errorf("wrapped: %w", ai.ErrQuotaExceeded)

	_, err := f.svc.Analyze(context.Background(), adminA(), "rec-1")
	if !errors.Is(err, ai.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if len(f.repo.byID) != 0 {
		t.Error("no assessment row may exist after quota exhaustion")
	}
}

func TestAnalyzeForbidden(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, doctorA("doc-1"), "rec-1"); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("doctor analyze err = %v, want ErrForbidden", err)
	}
	foreign := &tenants.User{ID: "admin-b", HospitalID: "hosp-b", Role: tenants.RoleHospitalAdmin}
	if _, err := f.svc.Analyze(ctx, foreign, "rec-1"); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("foreign admin err = %v, want ErrForbidden", err)
	}
}

func TestListFailures(t *testing.T) {
	f := newFixture(time.Now())
	f.ai.err = fmt.Errorf("connection reset")
	ctx := context.Background()

	if _, err := f.svc.Analyze(ctx, adminA(), "rec-1"); !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("analyze err = %v, want ErrGenerationFailed", err)
	}

	failures, err := f.svc.ListFailures(ctx, adminA(), "rec-1", 10)
	if err != nil {
		t.Fatalf("ListFailures: %v", err)
	}
	if len(failures) != 1 || !strings.Contains(failures[0].Message, "connection reset") {
		t.Errorf("failures = %+v", failures)
	}

	if _, err := f.svc.ListFailures(ctx, doctorA("doc-1"), "rec-1", 10); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("doctor list err = %v, want ErrForbidden", err)
	}
}

func TestGetReturnsFindings(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	detail, err := f.svc.Get(ctx, adminA(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(detail.Findings) != 1 {
		t.Fatalf("findings = %d, want 1", len(detail.Findings))
	}
	if detail.Findings[0].Marker != "glucose" || detail.Findings[0].Flag != patients.FlagHigh {
		t.Errorf("finding = %+v", detail.Findings[0])
	}
}

func TestAssign(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	got, err := f.svc.Assign(ctx, adminA(), a.ID, "doc-1")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if got.AssignedDoctor == nil || *got.AssignedDoctor != "doc-1" {
		t.Errorf("assigned = %v", got.AssignedDoctor)
	}

	// re-assignment overwrites
	got, err = f.svc.Assign(ctx, adminA(), a.ID, "doc-2")
	if err != nil {
		t.Fatalf("re-assign: %v", err)
	}
	if *got.AssignedDoctor != "doc-2" {
		t.Errorf("assigned = %v after re-assign", got.AssignedDoctor)
	}
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	tests := []struct {
		name   string
		doctor tenants.UserID
	}{
		{"blank selection", "  "},
		{"unknown doctor", "ghost"},
		{"doctor from another hospital", "doc-b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Assign(ctx, adminA(), a.ID, tt.doctor); !errors.Is(err, domain.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}

	if _, err := f.svc.Assign(ctx, doctorA("doc-1"), a.ID, "doc-1"); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("doctor assigning err = %v, want ErrForbidden", err)
	}
}

func TestReview(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	f := newFixture(now)
	ctx := context.Background()
	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	got, err := f.svc.Review(ctx, doctorA("doc-1"), a.ID, "agree with the model")
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if got.Status != domain.StatusReviewed {
		t.Errorf("status = %s", got.Status)
	}
	if got.ReviewedAt == nil || !got.ReviewedAt.Equal(now) {
		t.Errorf("reviewed_at = %v, want %v", got.ReviewedAt, now)
	}

	_, err = f.svc.Review(ctx, doctorA("doc-2"), a.ID, "me too")
	if !errors.Is(err, domain.ErrAlreadyReviewed) {
		t.Fatalf("second review err = %v, want ErrAlreadyReviewed", err)
	}
}

func TestReviewValidation(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	a, err := f.svc.Analyze(ctx, adminA(), "rec-1")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if _, err := f.svc.Review(ctx, doctorA("doc-1"), a.ID, "   "); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("blank comments err = %v, want ErrInvalid", err)
	}
	if _, err := f.svc.Review(ctx, adminA(), a.ID, "fine"); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("admin review err = %v, want ErrForbidden", err)
	}

	if _, err := f.svc.Assign(ctx, adminA(), a.ID, "doc-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := f.svc.Review(ctx, doctorA("doc-2"), a.ID, "fine"); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("other doctor review err = %v, want ErrForbidden", err)
	}
}

func TestWorklist(t *testing.T) {
	f := newFixture(time.Now())
	ctx := context.Background()
	if _, err := f.svc.Analyze(ctx, adminA(), "rec-1"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	items, err := f.svc.Worklist(ctx, doctorA("doc-1"), 1, 10)
	if err != nil {
		t.Fatalf("Worklist: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 unassigned entry", len(items))
	}

	if _, err := f.svc.Worklist(ctx, adminA(), 1, 10); !errors.Is(err, authz.ErrForbidden) {
		t.Errorf("admin worklist err = %v, want ErrForbidden", err)
	}
}
