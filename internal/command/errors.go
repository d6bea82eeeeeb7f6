//
//
package command

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Normalized gateway errors.
var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrNotFound     = errors.New("NOT_FOUND")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")
)

// StatusError wraps a non-2xx answer with the backend's detail message.
type StatusError struct {
	Code   error // Normalized code
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v (http %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("%v (http %d: %s)", e.Code, e.Status, e.Detail)
}

func (e *StatusError) Unwrap() error {
	return e.Code
}

// statusTable maps HTTP statuses onto normalized codes. Statuses not listed
// map by class in codeForStatus.
var statusTable = map[int]error{
	http.StatusBadRequest:          ErrInvalidRange,
	http.StatusUnprocessableEntity: ErrInvalidRange,
	http.StatusNotFound:            ErrNotFound,
	http.StatusBadGateway:          ErrUnavailable,
	http.StatusServiceUnavailable:  ErrUnavailable,
	http.StatusGatewayTimeout:      ErrUnavailable,
}

func codeForStatus(status int) error {
	if code, ok := statusTable[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return ErrInvalidRange
	}
	return ErrInternal
}

// NormalizeStatus turns an HTTP error status into a *StatusError.
func NormalizeStatus(status int, detail string) error {
	return &StatusError{Code: codeForStatus(status), Status: status, Detail: detail}
}

// CodeRejected is the audit code of a request the backend answered with
// success=false.
const CodeRejected = "REJECTED"

// CodeOf returns the audit code for err: SUCCESS for nil, the normalized
// code name otherwise.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, ErrInvalidRange):
		return ErrInvalidRange.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrUnavailable.Error()
	default:
		return ErrInternal.Error()
	}
}

// OutcomeFromError renders err as a failed outcome for the operator.
func OutcomeFromError(err error) Outcome {
	var se *StatusError
	if errors.As(err, &se) && se.Detail != "" {
		return Outcome{Success: false, Message: se.Detail}
	}
	return Outcome{Success: false, Message: err.Error()}
}
