package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failed backend call.
type ErrorKind int

const (
	// KindTransport means no response was received.
	KindTransport ErrorKind = iota + 1
	// KindServer means the backend answered with an error status.
	KindServer
	// KindUnauthorized means the credential was missing, expired or rejected (401).
	KindUnauthorized
	// KindDecode means the response body could not be parsed.
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	case KindUnauthorized:
		return "unauthorized"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against *Error.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
)

// Error is returned by every Client method that fails.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindTransport:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Detail)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": " + e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers test status classes with errors.Is.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// DetailOf returns the server-supplied message carried by err, if any.
func DetailOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}
