package auth

import "errors"

var (
	ErrInvalidHashFormat       = errors.New("invalid password hash format")
	ErrUnexpectedSigningMethod = errors.New("unexpected token signing method")
	ErrInvalidCredentials      = errors.New("invalid username or password")
)
