package ingest

import (
	"errors"
	"net/http"
)

// Kind classifies why a request was refused.
type Kind int

const (
	// KindMalformed covers envelope shape, field types, unparseable values
	// and unknown channels.
	KindMalformed Kind = iota + 1
	// KindForbidden means no receiver matched the authenticator.
	KindForbidden
	// KindInternal means storage could not be reached or prepared.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindForbidden:
		return "forbidden"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Status is the HTTP status code a refusal of this kind is reported with.
func (k Kind) Status() int {
	switch k {
	case KindMalformed:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a refused request. Reason is short and safe to send back to the
// receiver; Err carries the underlying cause, if any, for logging.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Reason + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func malformed(reason string) *Error {
	return &Error{Kind: KindMalformed, Reason: reason}
}

func internal(reason string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: reason, Err: err}
}

// Result is the outcome of processing one envelope.
type Result struct {
	Status int
	Reason string // empty on success
}

// OK reports whether the envelope was accepted.
func (r Result) OK() bool { return r.Status == http.StatusOK }

func (r Result) outcome() string {
	switch r.Status {
	case http.StatusOK:
		return "accepted"
	case http.StatusBadRequest:
		return "malformed"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

func resultFor(err error) Result {
	if err == nil {
		return Result{Status: http.StatusOK}
	}
	var ie *Error
	if errors.As(err, &ie) {
		return Result{Status: ie.Kind.Status(), Reason: ie.Reason}
	}
	return Result{Status: http.StatusInternalServerError, Reason: "internal server error"}
}
