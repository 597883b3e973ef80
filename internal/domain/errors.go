package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// Element lifecycle / transport.
	ErrNotMounted       = fmt.Errorf("element not mounted")
	ErrFrameUnavailable = fmt.Errorf("frame content window unavailable")
	ErrFrameNotReady    = fmt.Errorf("element not mounted and ready")

	// Protocol round trips.
	ErrTimeout        = fmt.Errorf("operation timed out")
	ErrRequestPending = fmt.Errorf("request of this kind already in flight")
	ErrTokenization   = fmt.Errorf("tokenization failed")

	// Backend records.
	ErrSessionNotFound = fmt.Errorf("payment session not found")
	ErrMethodNotFound  = fmt.Errorf("payment method not found")
	ErrPaymentNotFound = fmt.Errorf("payment not found")
	ErrSessionMismatch = fmt.Errorf("payment method does not match session")
	ErrAmountMismatch  = fmt.Errorf("payment amount does not match session")
	ErrInvalidInput    = fmt.Errorf("invalid input")

	// Auth.
	ErrAuthMissing = fmt.Errorf("missing authorization")
	ErrAuthInvalid = fmt.Errorf("invalid api key")

	// Infrastructure.
	ErrRateLimited = fmt.Errorf("rate limit exceeded")
	ErrConfigLoad  = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "CardForm.Submit")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil.
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotMounted       ErrorCode = "NOT_MOUNTED"
	CodeFrameUnavailable ErrorCode = "FRAME_UNAVAILABLE"
	CodeFrameNotReady    ErrorCode = "FRAME_NOT_READY"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeRequestPending   ErrorCode = "REQUEST_PENDING"
	CodeTokenization     ErrorCode = "TOKENIZATION_FAILED"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeMethodNotFound   ErrorCode = "METHOD_NOT_FOUND"
	CodePaymentNotFound  ErrorCode = "PAYMENT_NOT_FOUND"
	CodeSessionMismatch  ErrorCode = "SESSION_MISMATCH"
	CodeAmountMismatch   ErrorCode = "AMOUNT_MISMATCH"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeAuthMissing      ErrorCode = "AUTH_MISSING"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotMounted:       CodeNotMounted,
	ErrFrameUnavailable: CodeFrameUnavailable,
	ErrFrameNotReady:    CodeFrameNotReady,
	ErrTimeout:          CodeTimeout,
	ErrRequestPending:   CodeRequestPending,
	ErrTokenization:     CodeTokenization,
	ErrSessionNotFound:  CodeSessionNotFound,
	ErrMethodNotFound:   CodeMethodNotFound,
	ErrPaymentNotFound:  CodePaymentNotFound,
	ErrSessionMismatch:  CodeSessionMismatch,
	ErrAmountMismatch:   CodeAmountMismatch,
	ErrInvalidInput:     CodeInvalidInput,
	ErrAuthMissing:      CodeAuthMissing,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrRateLimited:      CodeRateLimited,
	ErrConfigLoad:       CodeConfigLoad,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
