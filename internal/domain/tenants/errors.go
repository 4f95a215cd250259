package tenants

import "errors"

var (
	// ErrNotFound is returned when a hospital or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken indicates the email already belongs to another account
	// (uniqueness is case-insensitive).
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login failures leak nothing about which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalid marks bad form input (blank fields, password mismatch).
	ErrInvalid = errors.New("invalid input")
)
