package tenants

import "context"

// Repository port for hospitals and users
type Repository interface {
	// CreateHospitalWithAdmin inserts the hospital and its first admin user
	// in one transaction. Either both rows commit or neither does.
	CreateHospitalWithAdmin(ctx context.Context, h *Hospital, admin *User) error

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	// GetUserByEmail matches case-insensitively. Returns ErrNotFound when absent.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListDoctors(ctx context.Context, hospital HospitalID) ([]*User, error)
}

// SessionStore port for login tokens
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}
