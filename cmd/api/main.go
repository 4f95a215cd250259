package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinovia/labrisk/internal/application"
	appaccounts "github.com/clinovia/labrisk/internal/application/accounts"
	appassessments "github.com/clinovia/labrisk/internal/application/assessments"
	apppatients "github.com/clinovia/labrisk/internal/application/patients"
	"github.com/clinovia/labrisk/internal/config"
	domassessments "github.com/clinovia/labrisk/internal/domain/assessments"
	dompatients "github.com/clinovia/labrisk/internal/domain/patients"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	openaiClient "github.com/clinovia/labrisk/internal/infra/ai/openai"
	mysqlp "github.com/clinovia/labrisk/internal/infra/db/mysql"
	postgresp "github.com/clinovia/labrisk/internal/infra/db/postgres"
	"github.com/clinovia/labrisk/internal/infra/httpserver"
	minioStore "github.com/clinovia/labrisk/internal/infra/storage"
	"github.com/clinovia/labrisk/internal/logger"
)

// repositories groups the driver-specific persistence adapters.
type repositories struct {
	tenants     tenants.Repository
	sessions    tenants.SessionStore
	patients    dompatients.Repository
	assessments domassessments.Repository
	failures    domassessments.FailureLog
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, *repositories, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return db, &repositories{
			tenants:     mysqlp.NewTenantRepository(db),
			sessions:    mysqlp.NewSessionRepository(db),
			patients:    mysqlp.NewPatientRepository(db),
			assessments: mysqlp.NewAssessmentRepository(db),
			failures:    mysqlp.NewFailureRepository(db),
		}, nil
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return db, &repositories{
			tenants:     postgresp.NewTenantRepository(db),
			sessions:    postgresp.NewSessionRepository(db),
			patients:    postgresp.NewPatientRepository(db),
			assessments: postgresp.NewAssessmentRepository(db),
			failures:    postgresp.NewFailureRepository(db),
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		logger.Log.Fatalf("config load error: %v", err)
	}
	logger.Init()

	ctx := context.Background()

	db, repos, err := openDatabase(ctx, cfg)
	if err != nil {
		logger.Log.Fatalf("database connect error: %v", err)
	}
	defer db.Close()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		logger.Log.Fatalf("minio init error: %v", err)
	}

	// A missing API key is a deployment mistake; refuse to start rather
	// than fail on the first analyze request.
	aiClient, err := openaiClient.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	if err != nil {
		logger.Log.Fatalf("ai client init error: %v", err)
	}

	clock := application.SystemClock{}

	accountsSvc := &appaccounts.Service{
		Repo:     repos.tenants,
		Sessions: repos.sessions,
		Clock:    clock,
		TokenTTL: time.Duration(cfg.Auth.SessionTTLHours) * time.Hour,
	}
	patientsSvc := &apppatients.Service{
		Repo:  repos.patients,
		Clock: clock,
	}
	assessmentsSvc := &appassessments.Service{
		Repo:     repos.assessments,
		Patients: repos.patients,
		Users:    repos.tenants,
		AI:       aiClient,
		Failures: repos.failures,
		Archive:  store,
		Clock:    clock,
	}

	handler := httpserver.NewRouter(accountsSvc, patientsSvc, assessmentsSvc, store, db)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Log.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Log.Warnf("shutdown error: %v", err)
	}
}
