package quiz

import "errors"

// Sentinel errors for the attempt lifecycle. Callers match with errors.Is;
// the HTTP layer maps them onto status codes.
var (
	ErrNotFound            = errors.New("not found")
	ErrNotOwner            = errors.New("caller does not own this attempt")
	ErrNotAuthorized       = errors.New("caller is not authorized")
	ErrAttemptClosed       = errors.New("attempt is no longer in progress")
	ErrAttemptExists       = errors.New("attempt already exists for this quiz")
	ErrAttemptNotCompleted = errors.New("attempt is not awaiting manual grading")
	ErrQuizNotActive       = errors.New("quiz is not open for attempts")
	ErrQuizPublished       = errors.New("published quiz cannot be modified")
	ErrValidation          = errors.New("invalid input")

	// ErrConflict signals an optimistic-write collision. The service retries
	// once before surfacing it as a transient failure.
	ErrConflict = errors.New("concurrent update conflict")
)
