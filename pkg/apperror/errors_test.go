package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("LED_003", "Balance would go negative", http.StatusUnprocessableEntity),
			expected: "[LED_003] Balance would go negative",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_002", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_002] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("VAL_001", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestLedgerErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"NotFound", ErrNotFound("wallet"), "LED_001", 404},
		{"InvalidTransition", ErrInvalidTransition("booking already released"), "LED_002", 409},
		{"InsufficientFunds", ErrInsufficientFunds(), "LED_003", 422},
		{"CurrencyMismatch", ErrCurrencyMismatch(), "LED_004", 422},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestAuthAndValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"Unauthenticated", ErrUnauthenticated(), "AUTH_001", 401},
		{"InvalidToken", ErrInvalidToken(), "AUTH_002", 401},
		{"InvalidArgument", ErrInvalidArgument("missing bookingId"), "VAL_001", 400},
		{"InvalidAmount", ErrInvalidAmount(), "VAL_002", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestUpstreamErrors(t *testing.T) {
	provider := ErrPaymentProvider(fmt.Errorf("timeout"))
	assert.Equal(t, "UPS_001", provider.Code)
	assert.Equal(t, http.StatusBadGateway, provider.HTTPStatus)

	notSucceeded := ErrPaymentNotSucceeded("requires_payment_method")
	assert.Equal(t, "UPS_002", notSucceeded.Code)
	assert.Contains(t, notSucceeded.Message, "requires_payment_method")
}
