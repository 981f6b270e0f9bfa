package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid         ErrorCode = "invalid"
	ErrorForbidden       ErrorCode = "forbidden"
	ErrorNotFound        ErrorCode = "not_found"
	ErrorConflict        ErrorCode = "conflict"
	ErrorUnauthorized    ErrorCode = "unauthorized"
	ErrorBadGateway      ErrorCode = "bad_gateway"
	ErrorUnavailable     ErrorCode = "unavailable"
	ErrorTooManyRequests ErrorCode = "too_many_requests"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewBadGatewayError(msg string) error  { return &ServiceError{Code: ErrorBadGateway, Message: msg} }
func NewUnavailableError(msg string) error { return &ServiceError{Code: ErrorUnavailable, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

var (
	// ErrNoActiveAssessment is returned when an answer or navigation arrives while no draft exists.
	ErrNoActiveAssessment = NewConflictError("no assessment in progress")
	// ErrAtFirstCategory signals the caller to leave the flow instead of stepping back.
	ErrAtFirstCategory = NewConflictError("already at the first category")
	// ErrUnknownQuestion rejects answers for ids outside the catalog.
	ErrUnknownQuestion = NewInvalidError("unknown question id")
	// ErrInvalidRating rejects ratings outside [MinRating, MaxRating].
	ErrInvalidRating = NewInvalidError("rating must be between 1 and 5")
	// ErrDraftNotSaved marks a draft write that failed; the in-memory answer still applies.
	ErrDraftNotSaved = NewUnavailableError("draft could not be saved")
	// ErrHistoryUnavailable marks a failed history read or append.
	ErrHistoryUnavailable = NewUnavailableError("assessment history unavailable")
	// ErrAssessmentNotFound is returned when a completed assessment id is not in the owner's history.
	ErrAssessmentNotFound = NewNotFoundError("assessment not found")
)
