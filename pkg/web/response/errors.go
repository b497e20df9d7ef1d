package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/strata-api/strata/pkg/entity"
)

// ErrorBody is the inner payload of an error envelope.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response in a single "error" object.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// FieldDetail describes one field-level failure in the details list of a
// VALIDATION_FAILED response.
type FieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RenderError writes an error envelope with a code derived from the status
// code. Validation errors are detected and rendered with field details
// regardless of the status passed in.
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		RenderValidationError(w, ve)
		return
	}
	RenderErrorWithCode(w, statusCode, err, errorCodeFromStatus(statusCode))
}

// RenderErrorWithCode writes an error envelope with an explicit code.
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	RenderJSON(w, statusCode, &ErrorEnvelope{Error: ErrorBody{
		Code:    code,
		Message: err.Error(),
	}})
}

// RenderValidationError writes a 400 VALIDATION_FAILED envelope carrying one
// detail entry per failed field.
func RenderValidationError(w http.ResponseWriter, ve *entity.ValidationError) {
	details := make([]FieldDetail, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		details = append(details, FieldDetail{Field: fe.Field, Message: fe.Message})
	}

	RenderJSON(w, http.StatusBadRequest, &ErrorEnvelope{Error: ErrorBody{
		Code:    "VALIDATION_FAILED",
		Message: "the request contains invalid data",
		Details: details,
	}})
}

// RenderNotFound writes a 404 Not Found envelope.
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "resource not found"
	}
	RenderErrorWithCode(w, http.StatusNotFound, errors.New(message), "NOT_FOUND")
}

// RenderBadRequest writes a 400 Bad Request envelope.
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderErrorWithCode(w, http.StatusBadRequest, errors.New(message), "BAD_REQUEST")
}

// RenderUnauthorized writes a 401 Unauthorized envelope.
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	RenderErrorWithCode(w, http.StatusUnauthorized, errors.New(message), "UNAUTHORIZED")
}

// RenderInternalError writes a 500 Internal Server Error envelope.
func RenderInternalError(w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("internal server error")
	}
	RenderErrorWithCode(w, http.StatusInternalServerError, err, "INTERNAL_SERVER_ERROR")
}

// RenderFailure maps a handler error onto the envelope: explicit HTTP
// errors keep their status, missing records become 404, validation
// failures become 400 with field details, and everything else, closed
// sessions included, is a 500.
func RenderFailure(w http.ResponseWriter, err error) {
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		he.Render(w)
	case entity.IsNotFound(err):
		RenderErrorWithCode(w, http.StatusNotFound, err, "NOT_FOUND")
	case entity.IsValidationError(err):
		RenderError(w, http.StatusBadRequest, err)
	default:
		RenderInternalError(w, err)
	}
}

// HTTPError is an error with an explicit HTTP status. Generated route
// handlers return it for failures that do not map to an entity error
// type, such as an out-of-range list index.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: message}
}

// Errorf creates a new HTTP error with a formatted message.
func Errorf(statusCode int, format string, args ...interface{}) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Message: fmt.Sprintf(format, args...)}
}

// Render writes the HTTP error as an envelope response.
func (e *HTTPError) Render(w http.ResponseWriter) {
	RenderErrorWithCode(w, e.StatusCode, e, errorCodeFromStatus(e.StatusCode))
}

// errorCodeFromStatus maps HTTP status codes to envelope codes.
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "ERROR"
	}
}
