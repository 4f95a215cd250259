package tenants

import (
	"strings"
	"time"
)

// HospitalID identifier type
type HospitalID string

// UserID identifier type
type UserID string

// Role enum
type Role string

const (
	RoleHospitalAdmin Role = "HOSPITAL_ADMIN"
	RoleDoctor        Role = "DOCTOR"
)

// Hospital is the tenant boundary: every patient record and user belongs
// to exactly one hospital.
type Hospital struct {
	ID        HospitalID `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
}

// User is a principal scoped to one hospital.
type User struct {
	ID           UserID     `json:"id"`
	HospitalID   HospitalID `json:"hospital_id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Session is an issued login token.
type Session struct {
	Token     string    `json:"token"`
	UserID    UserID    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
