package session

import "errors"

// Failure taxonomy. Start errors are fatal to the flow, ErrSaveFailed is only
// logged, ErrSubmitFailed is recoverable and ErrAutoSubmitFailed leaves the
// attempt TimedOut with results unavailable.
var (
	ErrMissingCredential = errors.New("no credential supplied for the exam session")
	ErrResolution        = errors.New("course could not be resolved")
	ErrStartRejected     = errors.New("exam service declined to start the attempt")
	ErrSaveFailed        = errors.New("progress save failed")
	ErrSubmitFailed      = errors.New("exam submission failed")
	ErrAutoSubmitFailed  = errors.New("automatic submission failed")

	ErrAlreadyStarted  = errors.New("exam session already started")
	ErrNotActive       = errors.New("exam attempt is not active")
	ErrSessionClosed   = errors.New("exam session closed")
	ErrSubmitInFlight  = errors.New("exam submission already in flight")
	ErrInvalidQuestion = errors.New("question index out of range")
	ErrInvalidOption   = errors.New("option index out of range")

	errNoResult = errors.New("exam service returned no result")
)
