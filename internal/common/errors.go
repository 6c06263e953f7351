package common

import "errors"

var (
	// repository errors
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflicts with an existing record")

	// service errors
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")

	// token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
