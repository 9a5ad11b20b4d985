package service

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSessionNotFound   = errors.New("transaction session not found")
	ErrInquiryNotFound   = errors.New("transaction inquiry not found")
	ErrGateUnsupported   = errors.New("gate is not supported")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInquiryNotWaiting = errors.New("transaction inquiry is not waiting")
	ErrInvalidCallback   = errors.New("invalid gate callback")

	// ErrPersistence means a write failed before any status changed.
	ErrPersistence = errors.New("persistence failure")
	// ErrAlreadyVerified is returned for sessions that are no longer NOT_PAID.
	ErrAlreadyVerified    = errors.New("transaction already verified")
	ErrAdapterUnavailable = errors.New("gate adapter unavailable")
	// ErrVerificationInProgress means another caller holds a live verify claim
	// and the session is still NOT_PAID.
	ErrVerificationInProgress = errors.New("transaction verification in progress")
	// ErrInconsistentState means an audit log was written but the matching
	// status change could not be committed.
	ErrInconsistentState = errors.New("inconsistent transaction state")
)
