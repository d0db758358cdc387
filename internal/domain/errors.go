package domain

import "errors"

var (
	// ErrAuthRejected covers every credential failure, including failures of
	// the services consulted while verifying it.
	ErrAuthRejected      = errors.New("authentication rejected")
	ErrRoomNotFound      = errors.New("room not found")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrPersistence       = errors.New("persistence failure")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("unique constraint conflict")
)
