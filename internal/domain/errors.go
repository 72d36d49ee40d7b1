package domain

import "errors"

var (
	// ErrNotFound is returned when a session, code, student or answer lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed user input (codes, names, answers, question JSON).
	ErrValidation = errors.New("validation failed")
	// ErrBackendUnavailable indicates the document store or identity provider cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrPermission covers misconfigured credentials and writes by someone other than the owner.
	ErrPermission = errors.New("permission denied or backend misconfigured")
	// ErrSessionEnded is returned when a live mutation targets a session that is no longer active.
	ErrSessionEnded = errors.New("session has ended")
	// ErrDeleteFailed is the generic deletion error; partial cascades are not distinguished.
	ErrDeleteFailed = errors.New("deleting session failed")
)
