package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ProjectNotFound indicates the project root does not exist or is unreadable
	ProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	// SnapshotMissing indicates no analysis snapshot exists for the project
	SnapshotMissing ErrorCode = "SNAPSHOT_MISSING"
	// SnapshotStale indicates the analysis snapshot is older than the freshness window
	SnapshotStale ErrorCode = "SNAPSHOT_STALE"
	// InvalidCursor indicates a scan cursor that cannot be decoded or belongs to another scan
	InvalidCursor ErrorCode = "INVALID_CURSOR"
	// InvalidParameter indicates an invalid request parameter
	InvalidParameter ErrorCode = "INVALID_PARAMETER"
	// AnalyzerUnavailable indicates the remote deep analyzer is not reachable
	AnalyzerUnavailable ErrorCode = "ANALYZER_UNAVAILABLE"
	// SessionNotFound indicates the session does not exist
	SessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	// Timeout indicates an operation timed out
	Timeout ErrorCode = "TIMEOUT"
	// IOError indicates a filesystem read or write failed
	IOError ErrorCode = "IO_ERROR"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// Drilldown represents a suggested follow-up command
type Drilldown struct {
	Label string `json:"label"`
	Query string `json:"query"`
}

// LeviError represents a leviatan error with code, message, and suggestions
type LeviError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	Drilldowns     []Drilldown `json:"drilldowns,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// NewLeviError creates a new LeviError
func NewLeviError(code ErrorCode, message string, cause error, suggestedFixes []FixAction, drilldowns []Drilldown) *LeviError {
	return &LeviError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
		Drilldowns:     drilldowns,
	}
}

// Error implements the error interface
func (e *LeviError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *LeviError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *LeviError) WithDetails(details interface{}) *LeviError {
	e.Details = details
	return e
}

// NewProjectNotFoundError creates an error for a missing or unreadable project root
func NewProjectNotFoundError(path string, cause error) *LeviError {
	return NewLeviError(ProjectNotFound,
		fmt.Sprintf("Project path %q does not exist or is not readable", path),
		cause, GetSuggestedFixes(ProjectNotFound), nil)
}

// NewInvalidParameterError creates an error for an invalid request parameter
func NewInvalidParameterError(param, reason string) *LeviError {
	return NewLeviError(InvalidParameter,
		fmt.Sprintf("Invalid parameter %q: %s", param, reason),
		nil, nil, nil)
}

// NewInvalidCursorError creates an error for an unusable scan cursor
func NewInvalidCursorError(reason string) *LeviError {
	return NewLeviError(InvalidCursor,
		fmt.Sprintf("Invalid scan cursor: %s", reason),
		nil, nil, []Drilldown{{Label: "Start a fresh analysis", Query: "analyze"}})
}

// CodeOf returns the error code of err, or InternalError for unwrapped errors
func CodeOf(err error) ErrorCode {
	var le *LeviError
	if errors.As(err, &le) {
		return le.Code
	}
	return InternalError
}

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	var le *LeviError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	SnapshotMissing: {
		{
			Type:        RunCommand,
			Command:     "leviatan analyze",
			Safe:        true,
			Description: "Run a full analysis to create the insights snapshot",
		},
	},
	SnapshotStale: {
		{
			Type:        RunCommand,
			Command:     "leviatan analyze --force",
			Safe:        true,
			Description: "Re-analyze the project and refresh the snapshot",
		},
	},
	AnalyzerUnavailable: {
		{
			Type:        RunCommand,
			Command:     "leviatan status",
			Safe:        true,
			Description: "Check configured analyzers and local fallback state",
		},
	},
	ProjectNotFound: {
		{
			Type:        RunCommand,
			Command:     "leviatan analyze <path>",
			Safe:        true,
			Description: "Point the analysis at an existing project directory",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
