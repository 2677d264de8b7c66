package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
)

// Kind classifies failures independently of transport.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindQuotaExceeded
	KindUpstream
	KindConfiguration
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_failed"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUpstream:
		return "upstream_failure"
	case KindConfiguration:
		return "configuration_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Status is the default HTTP status for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindQuotaExceeded:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Unauthenticated(message string) *Error { return New(KindUnauthenticated, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func QuotaExceeded(message string) *Error   { return New(KindQuotaExceeded, message) }

func Upstream(message string, err error) *Error {
	return Wrap(KindUpstream, message, err)
}

// Configuration errors never expose which setting is missing to callers;
// detail goes in err and only reaches the logs.
func Configuration(err error) *Error {
	return Wrap(KindConfiguration, "Server configuration error", err)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, "Internal server error", err)
}

// OrInternal keeps classified errors as they are and wraps anything else
// as internal.
func OrInternal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return err
	}
	return Internal(err)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}

type ErrorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// WriteError renders err using the status of its kind.
func WriteError(w http.ResponseWriter, err error) {
	var e *Error
	if !stderrors.As(err, &e) {
		e = Internal(err)
	}
	WriteErrorStatus(w, e.Kind.Status(), e)
}

// WriteErrorStatus renders err with an explicit status. Internal and
// configuration errors are reduced to their generic message.
func WriteErrorStatus(w http.ResponseWriter, status int, err error) {
	var e *Error
	if !stderrors.As(err, &e) {
		e = Internal(err)
	}

	message := e.Message
	switch e.Kind {
	case KindInternal:
		message = "Internal server error"
	case KindConfiguration:
		message = "Server configuration error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Success: false,
		Message: message,
		Errors:  e.Fields,
	})
}

type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func WriteData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(DataResponse{Success: true, Data: data})
}

func WriteMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(MessageResponse{Success: true, Message: message})
}
