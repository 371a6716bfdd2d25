package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden           ErrCode = "FORBIDDEN"
	ErrCandidateAccessOnly ErrCode = "CANDIDATE_ACCESS_ONLY"
	ErrAdminAccessOnly     ErrCode = "ADMIN_ACCESS_ONLY"
	ErrNotSessionOwner     ErrCode = "NOT_SESSION_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidOptions ErrCode = "INVALID_OPTIONS"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound         ErrCode = "NOT_FOUND"
	ErrConflict         ErrCode = "CONFLICT"
	ErrDependencyExists ErrCode = "DEPENDENCY_EXISTS"

	// ─── Exam definition ───────────────────────────────────────────────
	ErrExamNotDraft         ErrCode = "EXAM_NOT_DRAFT"
	ErrInvalidTransition    ErrCode = "INVALID_STATUS_TRANSITION"
	ErrNoQuestions          ErrCode = "NO_QUESTIONS"
	ErrUnknownQuestion      ErrCode = "UNKNOWN_QUESTION"
	ErrPoolEmpty            ErrCode = "POOL_EMPTY"
	ErrPoolExceedsInventory ErrCode = "POOL_EXCEEDS_INVENTORY"
	ErrPoolInvalidCount     ErrCode = "POOL_INVALID_COUNT"
	ErrQuestionSourceMixed  ErrCode = "QUESTION_SOURCE_CONFLICT"
	ErrPoolExhausted        ErrCode = "POOL_EXHAUSTED"
	ErrPoolUnknownSubject   ErrCode = "POOL_UNKNOWN_SUBJECT"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotPublished   ErrCode = "EXAM_NOT_PUBLISHED"
	ErrInvalidAccessCode  ErrCode = "INVALID_ACCESS_CODE"
	ErrSessionFinished    ErrCode = "SESSION_FINISHED"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"
	ErrIndexOutOfRange    ErrCode = "INDEX_OUT_OF_RANGE"
	ErrResultNotAvailable ErrCode = "RESULT_NOT_AVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid."
	case ErrTokenExpired:
		return "Authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrCandidateAccessOnly:
		return "This resource is restricted to candidates."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."
	case ErrNotSessionOwner:
		return "This exam session belongs to another candidate."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidOptions:
		return "The question's options do not fit its type."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrDependencyExists:
		return "The resource is still referenced by other data."

	// ─── Exam definition ───────────────────────────────────────────────
	case ErrExamNotDraft:
		return "Only draft exams can be edited or deleted."
	case ErrInvalidTransition:
		return "The exam cannot move to that status."
	case ErrNoQuestions:
		return "The exam has no questions."
	case ErrUnknownQuestion:
		return "One or more questions do not belong to the exam's course."
	case ErrPoolEmpty:
		return "The question pool must request at least one question."
	case ErrPoolExceedsInventory:
		return "The question pool requests more questions than the course holds."
	case ErrPoolInvalidCount:
		return "Question pool counts must not be negative."
	case ErrQuestionSourceMixed:
		return "An exam uses either a question list or a question pool, not both."
	case ErrPoolExhausted:
		return "A subject holds fewer questions than the pool requests."
	case ErrPoolUnknownSubject:
		return "The question pool references a subject outside the exam's course."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrInvalidAccessCode:
		return "The exam access code is invalid."
	case ErrSessionFinished:
		return "This exam session has already been submitted."
	case ErrSessionExpired:
		return "Time is up for this exam session."
	case ErrIndexOutOfRange:
		return "Question index is out of range."
	case ErrResultNotAvailable:
		return "The result is not available until the session is finished."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
