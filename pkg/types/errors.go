package types

import "errors"

var (
	ErrInvalidUsername = errors.New("username must be 2-32 characters, alphanumeric + underscore only")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLarge = errors.New("message content exceeds 4KB limit")
)
