package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinovia/labrisk/internal/application"
	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/tenants"
	"github.com/clinovia/labrisk/internal/logger"
	"github.com/clinovia/labrisk/internal/middleware"
)

const (
	minPasswordLen  = 8
	tempPasswordLen = 12
	// uppercase + lowercase + digits, matching the invitation flow contract
	tempPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Service implements registration, login and doctor invitation use-cases.
type Service struct {
	Repo     tenants.Repository
	Sessions tenants.SessionStore
	Clock    application.Clock
	TokenTTL time.Duration
}

// Command for hospital + first admin registration
type RegisterCommand struct {
	HospitalName    string `json:"hospital_name"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// Register creates the hospital and its admin user atomically and logs the
// admin in.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*tenants.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	switch {
	case strings.TrimSpace(cmd.HospitalName) == "":
		return nil, "", fmt.Errorf("%w: hospital name is required", tenants.ErrInvalid)
	case strings.TrimSpace(cmd.FirstName) == "" || strings.TrimSpace(cmd.LastName) == "":
		return nil, "", fmt.Errorf("%w: first and last name are required", tenants.ErrInvalid)
	case email == "":
		return nil, "", fmt.Errorf("%w: email is required", tenants.ErrInvalid)
	case middleware.ValidateEmail(email) != nil:
		return nil, "", fmt.Errorf("%w: invalid email address", tenants.ErrInvalid)
	case len(cmd.Password) < minPasswordLen:
		return nil, "", fmt.Errorf("%w: password must be at least %d characters", tenants.ErrInvalid, minPasswordLen)
	case cmd.Password != cmd.PasswordConfirm:
		return nil, "", fmt.Errorf("%w: passwords do not match", tenants.ErrInvalid)
	}

	if err := s.checkEmailFree(ctx, email); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	now := s.Clock.Now()
	hospital := &tenants.Hospital{
		ID:        tenants.HospitalID(uuid.New().String()),
		Name:      strings.TrimSpace(cmd.HospitalName),
		CreatedAt: now,
	}
	admin := &tenants.User{
		ID:           tenants.UserID(uuid.New().String()),
		HospitalID:   hospital.ID,
		Email:        email,
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		Role:         tenants.RoleHospitalAdmin,
		PasswordHash: string(hash),
		CreatedAt:    now,
	}

	if err := s.Repo.CreateHospitalWithAdmin(ctx, hospital, admin); err != nil {
		return nil, "", err
	}

	token, err := s.issueSession(ctx, admin.ID)
	if err != nil {
		return nil, "", err
	}
	logger.WithFields(map[string]interface{}{
		"hospital": hospital.ID,
		"admin":    admin.ID,
	}).Info("hospital registered")
	return admin, token, nil
}

// Login checks credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*tenants.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			return nil, "", tenants.ErrInvalidCredentials
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", tenants.ErrInvalidCredentials
	}
	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Authenticate resolves a session token to its user. Expired sessions are
// deleted on sight.
func (s *Service) Authenticate(ctx context.Context, token string) (*tenants.User, error) {
	sess, err := s.Sessions.Find(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.Clock.Now().After(sess.ExpiresAt) {
		_ = s.Sessions.Delete(ctx, token)
		return nil, tenants.ErrInvalidCredentials
	}
	return s.Repo.GetUser(ctx, sess.UserID)
}

// Logout invalidates a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.Sessions.Delete(ctx, token)
}

// Command for inviting a doctor into the admin's hospital
type InviteDoctorCommand struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// InviteDoctor creates a DOCTOR user in the inviting admin's hospital with a
// generated temporary password, returned once.
func (s *Service) InviteDoctor(ctx context.Context, actor *tenants.User, cmd InviteDoctorCommand) (*tenants.User, string, error) {
	if err := authz.CanInviteDoctors(actor).Err(); err != nil {
		return nil, "", err
	}

	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || strings.TrimSpace(cmd.FirstName) == "" || strings.TrimSpace(cmd.LastName) == "" {
		return nil, "", fmt.Errorf("%w: first name, last name and email are required", tenants.ErrInvalid)
	}
	if err := middleware.ValidateEmail(email); err != nil {
		return nil, "", fmt.Errorf("%w: invalid email address", tenants.ErrInvalid)
	}
	if err := s.checkEmailFree(ctx, email); err != nil {
		return nil, "", err
	}

	tempPassword, err := generateTempPassword(tempPasswordLen)
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	doctor := &tenants.User{
		ID:           tenants.UserID(uuid.New().String()),
		HospitalID:   actor.HospitalID,
		Email:        email,
		FirstName:    strings.TrimSpace(cmd.FirstName),
		LastName:     strings.TrimSpace(cmd.LastName),
		Role:         tenants.RoleDoctor,
		PasswordHash: string(hash),
		CreatedAt:    s.Clock.Now(),
	}
	if err := s.Repo.CreateUser(ctx, doctor); err != nil {
		return nil, "", err
	}
	logger.WithFields(map[string]interface{}{
		"hospital": actor.HospitalID,
		"doctor":   doctor.ID,
	}).Info("doctor invited")
	return doctor, tempPassword, nil
}

// ListDoctors returns the doctors of the admin's hospital, for assignment.
func (s *Service) ListDoctors(ctx context.Context, actor *tenants.User) ([]*tenants.User, error) {
	if err := authz.CanInviteDoctors(actor).Err(); err != nil {
		return nil, err
	}
	return s.Repo.ListDoctors(ctx, actor.HospitalID)
}

func (s *Service) checkEmailFree(ctx context.Context, email string) error {
	_, err := s.Repo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		return tenants.ErrEmailTaken
	case errors.Is(err, tenants.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) issueSession(ctx context.Context, user tenants.UserID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	now := s.Clock.Now()
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	err := s.Sessions.Create(ctx, &tenants.Session{
		Token:     token,
		UserID:    user,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// generateTempPassword draws from crypto/rand over the fixed alphabet.
func generateTempPassword(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = tempPasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
