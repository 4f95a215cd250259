package postgres

import (
	"context"
	"database/sql"

	domain "github.com/clinovia/labrisk/internal/domain/tenants"
)

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// CreateHospitalWithAdmin inserts the registration pair in one transaction.
func (r *TenantRepository) CreateHospitalWithAdmin(ctx context.Context, h *domain.Hospital, admin *domain.User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const qh = `INSERT INTO hospitals (id, name, created_at) VALUES ($1,$2,$3);`
	if _, err := tx.ExecContext(ctx, qh, h.ID, h.Name, h.CreatedAt); err != nil {
		return err
	}
	if err := insertUser(ctx, tx, admin); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *TenantRepository) CreateUser(ctx context.Context, u *domain.User) error {
	return insertUser(ctx, r.db, u)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertUser(ctx context.Context, db execer, u *domain.User) error {
	const q = `
INSERT INTO users (id, hospital_id, email, first_name, last_name, role, password_hash, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
`
	_, err := db.ExecContext(ctx, q,
		u.ID, u.HospitalID, u.Email, u.FirstName, u.LastName, u.Role, u.PasswordHash, u.CreatedAt,
	)
	if isDuplicate(err) {
		return domain.ErrEmailTaken
	}
	return err
}

const userColumns = `id, hospital_id, email, first_name, last_name, role, password_hash, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(
		&u.ID, &u.HospitalID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.PasswordHash, &u.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *TenantRepository) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 LIMIT 1;`, id)
	return scanUser(row)
}

func (r *TenantRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1) LIMIT 1;`, email)
	return scanUser(row)
}

func (r *TenantRepository) ListDoctors(ctx context.Context, hospital domain.HospitalID) ([]*domain.User, error) {
	const q = `
SELECT ` + userColumns + `
FROM users
WHERE hospital_id=$1 AND role=$2
ORDER BY last_name, first_name;
`
	rows, err := r.db.QueryContext(ctx, q, hospital, domain.RoleDoctor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SessionRepository stores login tokens.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	const q = `INSERT INTO sessions (token, user_id, created_at, expires_at) VALUES ($1,$2,$3,$4);`
	_, err := r.db.ExecContext(ctx, q, s.Token, s.UserID, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r *SessionRepository) Find(ctx context.Context, token string) (*domain.Session, error) {
	const q = `SELECT token, user_id, created_at, expires_at FROM sessions WHERE token=$1 LIMIT 1;`
	var s domain.Session
	err := r.db.QueryRowContext(ctx, q, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token=$1;`, token)
	return err
}
