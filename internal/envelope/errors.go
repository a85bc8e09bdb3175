package envelope

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced to callers. UI layers branch on these, so the
// strings are part of the wire contract.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeFeatureNotAvailable = "FEATURE_NOT_AVAILABLE"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeFileGeneration      = "FILE_GENERATION_ERROR"
	CodeReportTimeout       = "REPORT_GENERATION_TIMEOUT"
	CodeReportTooLarge      = "REPORT_DATA_TOO_LARGE"
	CodeUnknownFormat       = "UNKNOWN_RESPONSE_FORMAT"
	CodeNormalization       = "NORMALIZATION_ERROR"
	CodeCompatProcessing    = "COMPATIBILITY_PROCESSING_ERROR"
	CodeNetwork             = "NETWORK_ERROR"
)

// OperationCode builds the generic fallback code for an HTTP method, e.g.
// "GET_OPERATION_ERROR".
func OperationCode(method string) string {
	return method + "_OPERATION_ERROR"
}

// APIError is the typed error surfaced by the request pipeline. Every
// instance carries the originating request id for support correlation.
type APIError struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	Fields    []FieldError
	Details   any
	cause     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// PlanGated reports whether the error represents a plan/feature gate
// (a soft condition widget stores degrade on, rather than a hard failure).
func (e *APIError) PlanGated() bool {
	return e.Code == CodeFeatureNotAvailable
}

// NewAPIError constructs an APIError without a cause.
func NewAPIError(code, message string, status int, requestID string) *APIError {
	return &APIError{Code: code, Message: message, Status: status, RequestID: requestID}
}

// WrapAPIError constructs an APIError around an underlying error.
func WrapAPIError(code, message string, status int, requestID string, cause error) *APIError {
	return &APIError{Code: code, Message: message, Status: status, RequestID: requestID, cause: cause}
}

// AsAPIError extracts an *APIError from an error chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == code
}

// BulkFailure records one failed item of a bulk operation.
type BulkFailure struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// BulkResult summarises a bulk operation: which items succeeded, which
// failed, and the aggregate counts.
type BulkResult struct {
	Successful     []any         `json:"successful"`
	Failed         []BulkFailure `json:"failed"`
	TotalProcessed int           `json:"totalProcessed"`
	SuccessCount   int           `json:"successCount"`
	ErrorCount     int           `json:"errorCount"`
}
