// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can react without string matching
type Kind string

const (
	KindUnknown         Kind = "UNKNOWN"
	KindConnection      Kind = "CONNECTION"
	KindConnectionLost  Kind = "CONNECTION_LOST"
	KindNotConnected    Kind = "NOT_CONNECTED"
	KindTimeout         Kind = "TIMEOUT"
	KindParse           Kind = "PARSE"
	KindNotSupported    Kind = "NOT_SUPPORTED"
	KindStorage         Kind = "STORAGE"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	KindNotFound        Kind = "NOT_FOUND"
	KindRejected        Kind = "REJECTED"
)

type kindInfo struct {
	message string
	action  string
	status  int
}

var kinds = map[Kind]kindInfo{
	KindUnknown:         {"Unexpected error", "Retry the operation", http.StatusInternalServerError},
	KindConnection:      {"Could not open the wheel port", "Check the cable and that no other program holds the port", http.StatusBadGateway},
	KindConnectionLost:  {"Connection to the wheel was lost", "Check cable and reconnect", http.StatusBadGateway},
	KindNotConnected:    {"No wheel connected", "Connect to the wheel first", http.StatusConflict},
	KindTimeout:         {"Wheel did not answer in time", "Check cable and retry", http.StatusGatewayTimeout},
	KindParse:           {"Wheel sent an unreadable reply", "Update the wheel firmware", http.StatusBadGateway},
	KindNotSupported:    {"Not supported by this firmware", "Update the wheel firmware", http.StatusConflict},
	KindStorage:         {"Could not access local storage", "Check disk space and permissions", http.StatusInternalServerError},
	KindInvalidArgument: {"Invalid argument", "Correct the request", http.StatusBadRequest},
	KindNotFound:        {"Not found", "Check the name and retry", http.StatusNotFound},
	KindRejected:        {"Wheel refused the command", "Check that this firmware build can save to EEPROM", http.StatusBadGateway},
}

// AppError carries a user-facing message and a suggested next step
type AppError struct {
	Kind            Kind   `json:"kind"`
	Message         string `json:"message"`
	Details         string `json:"details,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
	Cause           error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports kind equality so sentinels match any error of the same kind
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// WithMessage replaces the user-facing message
func (e *AppError) WithMessage(message string) *AppError {
	e.Message = message
	return e
}

// WithAction replaces the suggested action
func (e *AppError) WithAction(action string) *AppError {
	e.SuggestedAction = action
	return e
}

// HTTPStatus returns the status code used by the API for this error
func (e *AppError) HTTPStatus() int {
	if info, ok := kinds[e.Kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// New creates an AppError of the given kind
func New(kind Kind, details ...string) *AppError {
	info, ok := kinds[kind]
	if !ok {
		info = kinds[KindUnknown]
	}

	err := &AppError{
		Kind:            kind,
		Message:         info.message,
		SuggestedAction: info.action,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}
	return err
}

// Newf creates an AppError with formatted details
func Newf(kind Kind, format string, args ...interface{}) *AppError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches a kind to err. An existing AppError keeps its kind.
func Wrap(err error, kind Kind, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		wrapped := *appErr
		if len(details) > 0 {
			wrapped.Details = joinDetails(strings.Join(details, "; "), appErr.Details)
		}
		wrapped.Cause = err
		return &wrapped
	}

	wrapped := New(kind, details...)
	wrapped.Cause = err
	wrapped.Details = joinDetails(wrapped.Details, err.Error())
	return wrapped
}

// Wrapf wraps err with formatted details
func Wrapf(err error, kind Kind, format string, args ...interface{}) *AppError {
	return Wrap(err, kind, fmt.Sprintf(format, args...))
}

// Timeout builds a timeout error for a named operation
func Timeout(operation string) *AppError {
	return New(KindTimeout).WithMessage(operation + " timed out")
}

// Is reports whether any error in err's chain is an AppError of kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// KindOf returns the kind of the first AppError in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// As is a shorthand for extracting the AppError from err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

func joinDetails(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}
