package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Credential ────────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrUnauthorized  ErrCode = "EXAM_SERVICE_UNAUTHORIZED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrAttemptInProgress  ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrCourseNotFound     ErrCode = "COURSE_NOT_FOUND"
	ErrStartRejected      ErrCode = "START_REJECTED"
	ErrAttemptNotActive   ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrSessionClosed      ErrCode = "SESSION_CLOSED"
	ErrSubmitInFlight     ErrCode = "SUBMIT_IN_FLIGHT"
	ErrSubmitFailed       ErrCode = "SUBMIT_FAILED"
	ErrInvalidQuestion    ErrCode = "INVALID_QUESTION"
	ErrInvalidOption      ErrCode = "INVALID_OPTION"
	ErrResultNotReady     ErrCode = "RESULT_NOT_READY"
	ErrResultsUnavailable ErrCode = "RESULTS_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrExamServiceUnavailable ErrCode = "EXAM_SERVICE_UNAVAILABLE"
	ErrInternal               ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Credential ────────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrUnauthorized:
		return "The exam service rejected your credentials. Please log in again."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Exam session not found or already closed."
	case ErrAttemptInProgress:
		return "You already have an attempt in progress for this course."
	case ErrCourseNotFound:
		return "Course not found."
	case ErrStartRejected:
		return "Failed to start exam. Please try again."
	case ErrAttemptNotActive:
		return "This attempt is no longer active."
	case ErrSessionClosed:
		return "This exam session has been closed."
	case ErrSubmitInFlight:
		return "Your answers are being submitted."
	case ErrSubmitFailed:
		return "Failed to submit exam. Please try again."
	case ErrInvalidQuestion:
		return "Question does not exist in this attempt."
	case ErrInvalidOption:
		return "Option does not exist for this question."
	case ErrResultNotReady:
		return "The result is not available yet."
	case ErrResultsUnavailable:
		return "Results are unavailable right now. Please contact support with your attempt id."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrExamServiceUnavailable:
		return "The exam service is unavailable. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
