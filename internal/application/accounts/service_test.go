package accounts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clinovia/labrisk/internal/domain/authz"
	"github.com/clinovia/labrisk/internal/domain/tenants"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type fakeTenantRepo struct {
	hospitals map[tenants.HospitalID]*tenants.Hospital
	users     map[tenants.UserID]*tenants.User
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		hospitals: make(map[tenants.HospitalID]*tenants.Hospital),
		users:     make(map[tenants.UserID]*tenants.User),
	}
}

func (r *fakeTenantRepo) CreateHospitalWithAdmin(_ context.Context, h *tenants.Hospital, admin *tenants.User) error {
	r.hospitals[h.ID] = h
	r.users[admin.ID] = admin
	return nil
}

func (r *fakeTenantRepo) CreateUser(_ context.Context, u *tenants.User) error {
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return tenants.ErrEmailTaken
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *fakeTenantRepo) GetUser(_ context.Context, id tenants.UserID) (*tenants.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, tenants.ErrNotFound
	}
	return u, nil
}

func (r *fakeTenantRepo) GetUserByEmail(_ context.Context, email string) (*tenants.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, tenants.ErrNotFound
}

func (r *fakeTenantRepo) ListDoctors(_ context.Context, hospital tenants.HospitalID) ([]*tenants.User, error) {
	var out []*tenants.User
	for _, u := range r.users {
		if u.HospitalID == hospital && u.Role == tenants.RoleDoctor {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeSessionStore struct {
	sessions map[string]*tenants.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*tenants.Session)}
}

func (s *fakeSessionStore) Create(_ context.Context, sess *tenants.Session) error {
	s.sessions[sess.Token] = sess
	return nil
}

func (s *fakeSessionStore) Find(_ context.Context, token string) (*tenants.Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return nil, tenants.ErrInvalidCredentials
	}
	return sess, nil
}

func (s *fakeSessionStore) Delete(_ context.Context, token string) error {
	delete(s.sessions, token)
	return nil
}

func newService(now time.Time) (*Service, *fakeTenantRepo, *fakeSessionStore) {
	repo := newFakeTenantRepo()
	sessions := newFakeSessionStore()
	svc := &Service{Repo: repo, Sessions: sessions, Clock: &fixedClock{now}}
	return svc, repo, sessions
}

func validRegister() RegisterCommand {
	return RegisterCommand{
		HospitalName:    "St. Mary",
		FirstName:       "Ada",
		LastName:        "Okoye",
		Email:           "Ada.Okoye@Example.com",
		Password:        "s3cret-pass",
		PasswordConfirm: "s3cret-pass",
	}
}

func TestRegister(t *testing.T) {
	svc, repo, _ := newService(time.Now())

	user, token, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if token == "" {
		t.Error("expected a session token")
	}
	if user.Role != tenants.RoleHospitalAdmin {
		t.Errorf("role = %s, want %s", user.Role, tenants.RoleHospitalAdmin)
	}
	if user.Email != "ada.okoye@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if len(repo.hospitals) != 1 {
		t.Errorf("hospitals created = %d, want 1", len(repo.hospitals))
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")) != nil {
		t.Error("stored hash does not match password")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterCommand)
	}{
		{"missing hospital name", func(c *RegisterCommand) { c.HospitalName = " " }},
		{"missing first name", func(c *RegisterCommand) { c.FirstName = "" }},
		{"missing email", func(c *RegisterCommand) { c.Email = "" }},
		{"malformed email", func(c *RegisterCommand) { c.Email = "definitely not an email" }},
		{"email without domain", func(c *RegisterCommand) { c.Email = "ada@" }},
		{"short password", func(c *RegisterCommand) { c.Password = "short"; c.PasswordConfirm = "short" }},
		{"password mismatch", func(c *RegisterCommand) { c.PasswordConfirm = "different-pass" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newService(time.Now())
			cmd := validRegister()
			tt.mutate(&cmd)
			_, token, err := svc.Register(context.Background(), cmd)
			if !errors.Is(err, tenants.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
			if token != "" {
				t.Error("a session token was issued for an invalid registration")
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newService(time.Now())
	ctx := context.Background()
	if _, _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("first register: %v", err)
	}

	cmd := validRegister()
	cmd.HospitalName = "Other Clinic"
	cmd.Email = "ADA.OKOYE@example.com" // same address, different case
	_, _, err := svc.Register(ctx, cmd)
	if !errors.Is(err, tenants.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newService(time.Now())
	ctx := context.Background()
	if _, _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, token, err := svc.Login(ctx, "ada.okoye@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" || user == nil {
		t.Fatal("expected user and token")
	}

	if _, _, err := svc.Login(ctx, "ada.okoye@example.com", "wrong"); !errors.Is(err, tenants.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret-pass"); !errors.Is(err, tenants.ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateExpiredSession(t *testing.T) {
	start := time.Now()
	repo := newFakeTenantRepo()
	sessions := newFakeSessionStore()
	clock := &fixedClock{start}
	svc := &Service{Repo: repo, Sessions: sessions, Clock: clock, TokenTTL: time.Hour}

	ctx := context.Background()
	_, token, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, token); err != nil {
		t.Fatalf("fresh session rejected: %v", err)
	}

	clock.t = start.Add(2 * time.Hour)
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, tenants.ErrInvalidCredentials) {
		t.Fatalf("expired session err = %v, want ErrInvalidCredentials", err)
	}
	if _, ok := sessions.sessions[token]; ok {
		t.Error("expired session should be deleted")
	}
}

func TestInviteDoctor(t *testing.T) {
	svc, _, _ := newService(time.Now())
	ctx := context.Background()
	admin, _, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	doctor, tempPassword, err := svc.InviteDoctor(ctx, admin, InviteDoctorCommand{
		FirstName: "Femi",
		LastName:  "Ade",
		Email:     "femi@example.com",
	})
	if err != nil {
		t.Fatalf("InviteDoctor: %v", err)
	}
	if doctor.Role != tenants.RoleDoctor {
		t.Errorf("role = %s, want %s", doctor.Role, tenants.RoleDoctor)
	}
	if doctor.HospitalID != admin.HospitalID {
		t.Error("doctor must join the inviting admin's hospital")
	}
	if len(tempPassword) != tempPasswordLen {
		t.Errorf("temp password length = %d, want %d", len(tempPassword), tempPasswordLen)
	}
	for _, c := range tempPassword {
		if !strings.ContainsRune(tempPasswordAlphabet, c) {
			t.Errorf("temp password contains %q outside the allowed alphabet", c)
		}
	}
	if bcrypt.CompareHashAndPassword([]byte(doctor.PasswordHash), []byte(tempPassword)) != nil {
		t.Error("temp password does not match stored hash")
	}
}

func TestInviteDoctorRejectsMalformedEmail(t *testing.T) {
	svc, _, _ := newService(time.Now())
	ctx := context.Background()
	admin, _, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	_, _, err = svc.InviteDoctor(ctx, admin, InviteDoctorCommand{
		FirstName: "Femi", LastName: "Ade", Email: "not-an-address",
	})
	if !errors.Is(err, tenants.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestInviteDoctorForbiddenForDoctors(t *testing.T) {
	svc, _, _ := newService(time.Now())
	actor := &tenants.User{ID: "d1", HospitalID: "h1", Role: tenants.RoleDoctor}
	_, _, err := svc.InviteDoctor(context.Background(), actor, InviteDoctorCommand{
		FirstName: "A", LastName: "B", Email: "x@example.com",
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}
