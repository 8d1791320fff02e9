package api

import (
	"encoding/json"
	"net/http"

	"leviatan/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
	Drilldowns     []errors.Drilldown `json:"drilldowns,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := ErrorResponse{
		Error: err.Error(),
	}

	// If it's a LeviError, include additional information
	if levErr, ok := err.(*errors.LeviError); ok {
		resp.Code = string(levErr.Code)
		resp.Details = levErr.Details
		resp.SuggestedFixes = levErr.SuggestedFixes
		resp.Drilldowns = levErr.Drilldowns
	} else {
		resp.Code = "INTERNAL_ERROR"
	}

	json.NewEncoder(w).Encode(resp)
}

// WriteLeviError writes a LeviError with automatic status code mapping
func WriteLeviError(w http.ResponseWriter, err *errors.LeviError) {
	status := MapLeviErrorToStatus(err.Code)
	WriteError(w, err, status)
}

// MapLeviErrorToStatus maps structured error codes to HTTP status codes
func MapLeviErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ProjectNotFound:
		return http.StatusNotFound // 404
	case errors.SnapshotMissing:
		return http.StatusNotFound // 404
	case errors.SnapshotStale:
		return http.StatusPreconditionFailed // 412
	case errors.InvalidCursor:
		return http.StatusBadRequest // 400
	case errors.InvalidParameter:
		return http.StatusBadRequest // 400
	case errors.AnalyzerUnavailable:
		return http.StatusServiceUnavailable // 503
	case errors.SessionNotFound:
		return http.StatusNotFound // 404
	case errors.Timeout:
		return http.StatusGatewayTimeout // 504
	case errors.IOError:
		return http.StatusInternalServerError // 500
	case errors.InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteAnyError routes structured errors through the status mapping and
// wraps everything else as a plain 500.
func WriteAnyError(w http.ResponseWriter, err error) {
	if levErr, ok := err.(*errors.LeviError); ok {
		WriteLeviError(w, levErr)
		return
	}
	WriteError(w, err, http.StatusInternalServerError)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, &errors.LeviError{
		Code:    errors.InvalidParameter,
		Message: message,
	}, http.StatusBadRequest)
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, &errors.LeviError{
		Code:    errors.ProjectNotFound,
		Message: message,
	}, http.StatusNotFound)
}

// MethodNotAllowed writes a 405 Method Not Allowed error
func MethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, &errors.LeviError{
		Code:    errors.InvalidParameter,
		Message: "method not allowed",
	}, http.StatusMethodNotAllowed)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, &errors.LeviError{
		Code:    errors.InternalError,
		Message: message,
	}, http.StatusInternalServerError)
}
