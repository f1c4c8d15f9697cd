// Package apperr holds the error taxonomy shared by repositories, services
// and handlers. Handlers map these to HTTP status codes.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
)
