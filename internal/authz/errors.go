package authz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("authz: permission denied")
	ErrNotFound      = errors.New("authz: not found")
	ErrConflict      = errors.New("authz: already exists")
	ErrInvalidInput  = errors.New("authz: invalid input")
	ErrMalformedCode = errors.New("authz: malformed permission code")
)

// UnknownPermissionsError reports every permission id that failed catalog
// validation, not just the first one.
type UnknownPermissionsError struct {
	IDs []string
}

func (e *UnknownPermissionsError) Error() string {
	return fmt.Sprintf("authz: unknown permission ids: %s", strings.Join(e.IDs, ", "))
}

func (e *UnknownPermissionsError) Unwrap() error { return ErrInvalidInput }
