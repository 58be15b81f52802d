// Package apperr defines the tagged error type returned across the auth,
// persistence and generation boundaries. Callers branch on Kind and Code
// instead of matching error strings; Message carries the user-facing text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error by the boundary that produced it.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindPersistence Kind = "persistence"
	KindGeneration  Kind = "generation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

// GenericMessage is shown when an error carries no user-facing message.
const GenericMessage = "Terjadi kesalahan. Silakan coba lagi."

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Code != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Code)
		sb.WriteString("]")
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, " (caused by: %v)", e.Cause)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates an Error of the given kind that wraps cause.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

func Validation(message string) *Error {
	return New(KindValidation, "validation/invalid-input", message)
}

func NotFound(resource string) *Error {
	return New(KindNotFound, "not-found", fmt.Sprintf("%s tidak ditemukan.", resource))
}

func Persistence(message string, cause error) *Error {
	return Wrap(KindPersistence, "persistence/failed", message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err, or "" for unclassified errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// MessageOf returns the user-facing message of err, falling back to
// GenericMessage.
func MessageOf(err error) string {
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	return GenericMessage
}

// Is reports whether err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		switch e.Code {
		case "auth/too-many-requests":
			return http.StatusTooManyRequests
		case "auth/email-already-in-use":
			return http.StatusConflict
		case "auth/invalid-email", "auth/weak-password", "auth/invalid-action-code", "auth/expired-action-code":
			return http.StatusBadRequest
		case "auth/operation-not-allowed":
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGeneration:
		if strings.HasSuffix(e.Code, "/network") {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
