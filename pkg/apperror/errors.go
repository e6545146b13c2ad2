package apperror

import (
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

// ---- Validation (VAL) ----

func ErrInvalidArgument(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Amount must be a positive minor-unit integer", http.StatusBadRequest)
}

// ---- Authentication (AUTH) ----

func ErrUnauthenticated() *AppError {
	return New("AUTH_001", "Caller identity could not be verified", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Ledger state machine (LED) ----

func ErrNotFound(entity string) *AppError {
	return New("LED_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ErrInvalidTransition reports an escrow state machine precondition violation,
// e.g. release without a prior hold or a second settlement of the same booking.
func ErrInvalidTransition(detail string) *AppError {
	return New("LED_002", detail, http.StatusConflict)
}

func ErrInsufficientFunds() *AppError {
	return New("LED_003", "Balance would go negative", http.StatusUnprocessableEntity)
}

func ErrCurrencyMismatch() *AppError {
	return New("LED_004", "Currency does not match wallet currency", http.StatusUnprocessableEntity)
}

// ---- Upstream collaborators (UPS) ----

func ErrPaymentProvider(err error) *AppError {
	return Wrap("UPS_001", "Payment provider request failed", http.StatusBadGateway, err)
}

func ErrPaymentNotSucceeded(status string) *AppError {
	return New("UPS_002", fmt.Sprintf("Payment not successful (status: %s)", status), http.StatusConflict)
}

func ErrWebhookSignature(err error) *AppError {
	return Wrap("UPS_003", "Webhook signature verification failed", http.StatusBadRequest, err)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an unexpected error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_002", "Internal database error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001-style validation error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
