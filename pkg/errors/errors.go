// Package errors defines the sentinel errors shared by the indexing and
// search packages, the AppError wrapper carried to HTTP callers, and the
// mapping from errors to status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDecode          = errors.New("document content is not decodable text")
	ErrQuerySyntax     = errors.New("query syntax error")
	ErrCommitConflict  = errors.New("commit conflict")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrInvalidLimit    = errors.New("limit must be positive")
	ErrBuilderSealed   = errors.New("builder already committed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
	ErrNoGenerationYet = errors.New("no generation found")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// DecodeError reports a single document whose content could not be read as
// text. It is local to that document; callers decide whether to skip it.
type DecodeError struct {
	Filename string
	Offset   int
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %q at byte %d: %s", e.Filename, e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrDecode
}

// SyntaxError reports a malformed query string.
type SyntaxError struct {
	Query  string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at position %d in %q: %s", e.Pos, e.Query, e.Reason)
}

func (e *SyntaxError) Unwrap() error {
	return ErrQuerySyntax
}

// CorruptIndexError reports a persisted generation whose structure is
// damaged. It is fatal for that file; nothing is served from it.
type CorruptIndexError struct {
	Path   string
	Reason string
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index %s: %s", e.Path, e.Reason)
}

func (e *CorruptIndexError) Unwrap() error {
	return ErrCorruptIndex
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQuerySyntax), errors.Is(err, ErrInvalidLimit), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrCommitConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNoGenerationYet):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
