package service

import (
	"errors"

	"besiktning-sync-server/internal/domain"
	"besiktning-sync-server/internal/repository"
)

// ErrNotFound mirrors the repository sentinel so handlers only need
// to know the service layer.
var ErrNotFound = repository.ErrNotFound

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserInactive       = errors.New("user is deactivated")
)

// ValidationError carries a client-fixable problem with a payload.
// In push it downgrades to a rejected op; in CRUD it becomes a 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConflictError wraps the conflict payload returned when a mutation
// lost the revision race.
type ConflictError struct {
	Conflict *domain.Conflict
}

func (e *ConflictError) Error() string {
	return "conflict detected"
}
