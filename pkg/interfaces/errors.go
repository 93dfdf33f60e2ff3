package interfaces

import "errors"

// Common errors shared across component boundaries.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
