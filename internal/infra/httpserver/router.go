package httpserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appaccounts "github.com/clinovia/labrisk/internal/application/accounts"
	appassessments "github.com/clinovia/labrisk/internal/application/assessments"
	apppatients "github.com/clinovia/labrisk/internal/application/patients"
	domai "github.com/clinovia/labrisk/internal/domain/ai"
	domassessments "github.com/clinovia/labrisk/internal/domain/assessments"
	"github.com/clinovia/labrisk/internal/domain/authz"
	dompatients "github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	"github.com/clinovia/labrisk/internal/middleware"
)

// maxUploadBytes bounds a bulk CSV upload.
const maxUploadBytes = 10 << 20

type Router struct {
	accountsSvc    *appaccounts.Service
	patientsSvc    *apppatients.Service
	assessmentsSvc *appassessments.Service
	archive        dompatients.ArchiveStore
}

func NewRouter(
	accountsSvc *appaccounts.Service,
	patientsSvc *apppatients.Service,
	assessmentsSvc *appassessments.Service,
	archive dompatients.ArchiveStore,
	db *sql.DB,
) http.Handler {
	r := &Router{
		accountsSvc:    accountsSvc,
		patientsSvc:    patientsSvc,
		assessmentsSvc: assessmentsSvc,
		archive:        archive,
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.SessionAuth(accountsSvc))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 2))

	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: db},
	}))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/auth/register", r.wrap(r.handleRegister))
		rt.Post("/auth/login", r.wrap(r.handleLogin))
		rt.Post("/auth/logout", r.wrap(r.handleLogout))

		rt.Post("/doctors/invite", r.wrap(r.handleInviteDoctor))
		rt.Get("/doctors", r.wrap(r.handleListDoctors))

		rt.Post("/patients", r.wrap(r.handleCreatePatient))
		rt.Get("/patients", r.wrap(r.handleListPatients))
		rt.Post("/patients/upload", r.wrap(r.handleUpload))
		rt.Get("/patients/{id}", r.wrap(r.handleGetPatient))
		rt.Delete("/patients/{id}", r.wrap(r.handleDeletePatient))
		rt.Post("/patients/{id}/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/patients/{id}/failures", r.wrap(r.handleListFailures))

		rt.Get("/assessments/{id}", r.wrap(r.handleGetAssessment))
		rt.Post("/assessments/{id}/assign", r.wrap(r.handleAssign))
		rt.Post("/assessments/{id}/review", r.wrap(r.handleReview))
		rt.Get("/worklist", r.wrap(r.handleWorklist))

		rt.Get("/reports/export", r.wrap(r.handleExport))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			http.Error(w, err.Error(), statusFor(err))
		}
	}
}

// statusFor maps domain sentinels to HTTP statuses. Tenant violations come
// back as 403, never 404, so a cross-hospital probe learns the resource
// exists but is out of reach rather than guessing at identifiers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, authz.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, tenants.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, tenants.ErrNotFound),
		errors.Is(err, dompatients.ErrNotFound),
		errors.Is(err, domassessments.ErrNotFound),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, tenants.ErrEmailTaken),
		errors.Is(err, dompatients.ErrDuplicateIdentifier),
		errors.Is(err, domassessments.ErrDuplicateAssessment),
		errors.Is(err, domassessments.ErrAlreadyReviewed):
		return http.StatusConflict
	case errors.Is(err, tenants.ErrInvalid),
		errors.Is(err, dompatients.ErrInvalid),
		errors.Is(err, domassessments.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domassessments.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func actor(req *http.Request) (*tenants.User, error) {
	user := middleware.UserFromContext(req.Context())
	if user == nil {
		return nil, tenants.ErrInvalidCredentials
	}
	return user, nil
}

// pathID pulls the {id} URL parameter and rejects anything that is not a
// UUID before it reaches a query. The sentinel decides which 400 family the
// caller's error maps to.
func pathID(req *http.Request, sentinel error) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(id); err != nil {
		return "", fmt.Errorf("%w: %v", sentinel, err)
	}
	return id, nil
}

// POST /v1/auth/register
func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	var cmd appaccounts.RegisterCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return fmt.Errorf("%w: malformed request body", tenants.ErrInvalid)
	}
	user, token, err := r.accountsSvc.Register(req.Context(), cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": token,
	})
}

// POST /v1/auth/login
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: malformed request body", tenants.ErrInvalid)
	}
	user, token, err := r.accountsSvc.Login(req.Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

// POST /v1/auth/logout
func (r *Router) handleLogout(w http.ResponseWriter, req *http.Request) error {
	token := middleware.TokenFromContext(req.Context())
	if token == "" {
		return tenants.ErrInvalidCredentials
	}
	if err := r.accountsSvc.Logout(req.Context(), token); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"status": "logged out"})
}

// POST /v1/doctors/invite
func (r *Router) handleInviteDoctor(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	var cmd appaccounts.InviteDoctorCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return fmt.Errorf("%w: malformed request body", tenants.ErrInvalid)
	}
	doctor, tempPassword, err := r.accountsSvc.InviteDoctor(req.Context(), user, cmd)
	if err != nil {
		return err
	}
	// The temporary password is surfaced exactly once, here.
	return writeJSON(w, http.StatusCreated, map[string]any{
		"doctor":             doctor,
		"temporary_password": tempPassword,
	})
}

// GET /v1/doctors
func (r *Router) handleListDoctors(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	doctors, err := r.accountsSvc.ListDoctors(req.Context(), user)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

// POST /v1/patients
func (r *Router) handleCreatePatient(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	var cmd apppatients.CreateCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		return fmt.Errorf("%w: malformed request body", dompatients.ErrInvalid)
	}
	rec, err := r.patientsSvc.Create(req.Context(), user, cmd)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, rec)
}

// GET /v1/patients?page=&page_size=
func (r *Router) handleListPatients(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.patientsSvc.List(req.Context(), user, middleware.ValidatePage(page), middleware.ValidatePageSize(size, 15))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// POST /v1/patients/upload (multipart, field "file")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	// Cap the whole request body, with headroom for the multipart framing;
	// the per-file limit is enforced in readLimited.
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes+(1<<20))
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return fmt.Errorf("%w: could not parse upload: %v", dompatients.ErrInvalid, err)
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: a CSV file is required", dompatients.ErrInvalid)
	}
	defer file.Close()

	if err := middleware.ValidateUploadFilename(header.Filename); err != nil {
		return fmt.Errorf("%w: %v", dompatients.ErrInvalid, err)
	}

	// Buffer the raw bytes once: parsed here, archived below.
	raw, err := readLimited(file, maxUploadBytes)
	if err != nil {
		return err
	}

	rows, err := apppatients.ParseCSV(header.Filename, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	recs, err := r.patientsSvc.BulkIngest(req.Context(), user, rows)
	if err != nil {
		return err
	}
	middleware.AddRecordsUploaded(len(recs))
	r.archiveUpload(req, user, header.Filename, raw)

	ids := make([]dompatients.RecordID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return writeJSON(w, http.StatusCreated, map[string]any{
		"created":    len(recs),
		"record_ids": ids,
	})
}

// archiveUpload keeps a copy of the raw file in object storage. Best effort:
// the records are already committed.
func (r *Router) archiveUpload(req *http.Request, user *tenants.User, filename string, raw []byte) {
	if r.archive == nil {
		return
	}
	key := fmt.Sprintf("%s/uploads/%s", user.HospitalID, filename)
	_, _ = r.archive.Put(req.Context(), key, bytes.NewReader(raw), int64(len(raw)), "text/csv")
}

// readLimited buffers at most limit bytes and rejects longer input outright.
// Truncating an oversize CSV would silently drop trailing rows, so the whole
// upload fails instead.
func readLimited(src io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: the file exceeds the %d MB upload limit", dompatients.ErrInvalid, limit>>20)
	}
	return data, nil
}

// GET /v1/patients/{id}
func (r *Router) handleGetPatient(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, dompatients.ErrInvalid)
	if err != nil {
		return err
	}
	rec, err := r.patientsSvc.Get(req.Context(), user, dompatients.RecordID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, rec)
}

// DELETE /v1/patients/{id}
func (r *Router) handleDeletePatient(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, dompatients.ErrInvalid)
	if err != nil {
		return err
	}
	if err := r.patientsSvc.Delete(req.Context(), user, dompatients.RecordID(id)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// POST /v1/patients/{id}/analyze
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, dompatients.ErrInvalid)
	if err != nil {
		return err
	}
	a, err := r.assessmentsSvc.Analyze(req.Context(), user, dompatients.RecordID(id))
	if err != nil {
		if errors.Is(err, domassessments.ErrGenerationFailed) || errors.Is(err, domai.ErrQuotaExceeded) {
			middleware.IncrementReportsFailed()
		}
		return err
	}
	middleware.IncrementReportsGenerated()
	return writeJSON(w, http.StatusCreated, a)
}

// GET /v1/patients/{id}/failures?limit=
func (r *Router) handleListFailures(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, dompatients.ErrInvalid)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	failures, err := r.assessmentsSvc.ListFailures(req.Context(), user, dompatients.RecordID(id), limit)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"failures": failures})
}

// GET /v1/assessments/{id}
func (r *Router) handleGetAssessment(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, domassessments.ErrInvalid)
	if err != nil {
		return err
	}
	detail, err := r.assessmentsSvc.Get(req.Context(), user, domassessments.AssessmentID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, detail)
}

// POST /v1/assessments/{id}/assign
func (r *Router) handleAssign(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, domassessments.ErrInvalid)
	if err != nil {
		return err
	}
	var body struct {
		DoctorID string `json:"doctor_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: malformed request body", domassessments.ErrInvalid)
	}
	a, err := r.assessmentsSvc.Assign(req.Context(), user, domassessments.AssessmentID(id), tenants.UserID(body.DoctorID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// POST /v1/assessments/{id}/review
func (r *Router) handleReview(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, domassessments.ErrInvalid)
	if err != nil {
		return err
	}
	var body struct {
		Comments string `json:"comments"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: malformed request body", domassessments.ErrInvalid)
	}
	a, err := r.assessmentsSvc.Review(req.Context(), user, domassessments.AssessmentID(id), middleware.SanitizeString(body.Comments))
	if err != nil {
		return err
	}
	middleware.IncrementReviewsSubmitted()
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/worklist?page=&page_size=
func (r *Router) handleWorklist(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	items, err := r.assessmentsSvc.Worklist(req.Context(), user, middleware.ValidatePage(page), middleware.ValidatePageSize(size, 10))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GET /v1/reports/export
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	user, err := actor(req)
	if err != nil {
		return err
	}
	filename, data, err := r.assessmentsSvc.ExportReviewed(req.Context(), user)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, err = w.Write(data)
	return err
}
