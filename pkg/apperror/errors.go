package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes shared by the ledger and the HTTP layer.
const (
	CodeValidation        = "VAL_001"
	CodeNotFound          = "LED_001"
	CodeInvalidState      = "LED_002"
	CodeInsufficientFunds = "LED_003"

	CodeInvalidCredentials = "AUTH_001"
	CodeAccountExists      = "AUTH_002"
	CodeInvalidToken       = "AUTH_003"
	CodeForbidden          = "AUTH_004"

	CodeRateLimited = "RATE_001"

	CodeInternal  = "SYS_001"
	CodeRetryable = "SYS_002"
	CodeCanceled  = "SYS_004"
)

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// ---- Validation (VAL) ----

// Validation reports malformed input, rejected before any read.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return Validation("Amount must be a positive whole number")
}

// ---- Ledger (LED) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// InvalidState reports a blocked wallet, an inactive or unapproved account,
// or a counterparty with the wrong role.
func InvalidState(message string) *AppError {
	return New(CodeInvalidState, message, http.StatusUnprocessableEntity)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient balance in wallet", http.StatusPaymentRequired)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized)
}

func ErrAccountExists() *AppError {
	return New(CodeAccountExists, "Email or phone already registered", http.StatusConflict)
}

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient role for this action", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// ErrRetryable reports a write conflict that persisted across all retries.
func ErrRetryable(err error) *AppError {
	return Wrap(CodeRetryable, "Ledger busy, please retry", http.StatusServiceUnavailable, err)
}

func ErrCanceled(err error) *AppError {
	return Wrap(CodeCanceled, "Request canceled", http.StatusRequestTimeout, err)
}
