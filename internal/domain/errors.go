package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error surfaced by an operation wraps exactly one of these
// so callers can branch with errors.Is.
var (
	// ErrInvalidQuery marks malformed or out-of-range request parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUpstreamDataMissing marks a collaborator response that lacks a field
	// the contract requires, such as a forecast period without a temperature unit.
	ErrUpstreamDataMissing = errors.New("upstream data missing")

	// ErrLockTimeout is returned when the shared query cache lock could not be
	// acquired within the configured wait.
	ErrLockTimeout = errors.New("cache lock timeout")

	// ErrUpstreamUnavailable marks a collaborator that could not be reached or
	// answered with a failure status.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound marks an absent record. Operations that can express absence
	// as an empty result do so instead of returning it.
	ErrNotFound = errors.New("not found")
)

// Wire error types that appear in the error_type field of an error document.
const (
	ErrorTypeMissingRequestType = "missing_request_type"
	ErrorTypeRequestTypeInvalid = "request_type_invalid"
	ErrorTypeMalformedRequest   = "malformed_request"
	ErrorTypeInvalidBeachID     = "invalid_beach_id"
	ErrorTypeInvalidZipCode     = "invalid_zip_code"
	ErrorTypeInvalidCoordinates = "invalid_coordinates"
	ErrorTypeNoTempUnit         = "database_no_temp_unit"
	ErrorTypeNoForecast         = "database_no_forecast"
	ErrorTypeCacheLockTimeout   = "cache_lock_timeout"
	ErrorTypeUpstreamFailure    = "upstream_failure"
	ErrorTypeInternal           = "internal_error"
)

// QueryError is a classified operation failure. Kind is one of the Err*
// sentinels above; Type and Message are rendered verbatim into the error document.
type QueryError struct {
	Kind    error
	Type    string
	Message string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Kind
}

// NewQueryError builds a QueryError with a formatted message.
func NewQueryError(kind error, errorType, format string, args ...any) *QueryError {
	return &QueryError{Kind: kind, Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// ErrorDoc is the error response document.
type ErrorDoc struct {
	Code      string `json:"code"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// ToErrorDoc classifies err into an error document. Unclassified errors are
// reported as internal without leaking their text.
func ToErrorDoc(err error) ErrorDoc {
	var qe *QueryError
	if errors.As(err, &qe) {
		return ErrorDoc{Code: CodeError, ErrorType: qe.Type, Message: qe.Message}
	}
	switch {
	case errors.Is(err, ErrLockTimeout):
		return ErrorDoc{Code: CodeError, ErrorType: ErrorTypeCacheLockTimeout, Message: "The result cache is busy; retry the request"}
	case errors.Is(err, ErrUpstreamUnavailable):
		return ErrorDoc{Code: CodeError, ErrorType: ErrorTypeUpstreamFailure, Message: "A weather data provider is unavailable; retry later"}
	case errors.Is(err, ErrUpstreamDataMissing):
		return ErrorDoc{Code: CodeError, ErrorType: ErrorTypeUpstreamFailure, Message: "The weather service returned incomplete data"}
	default:
		return ErrorDoc{Code: CodeError, ErrorType: ErrorTypeInternal, Message: "The request could not be completed"}
	}
}

// CodeError is the code field value of every error document.
const CodeError = "ERROR"
