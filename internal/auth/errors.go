package auth

import "errors"

var (
	ErrNotFound  = errors.New("auth: not found")
	ErrForbidden = errors.New("auth: forbidden")
	ErrConflict  = errors.New("auth: already exists")
	ErrInvalid   = errors.New("auth: invalid input")
)
