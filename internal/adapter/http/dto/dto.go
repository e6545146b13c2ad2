package dto

// CreateIntentRequest is the request body for payment intent creation.
// The sender is taken from the authenticated caller, never from the body.
type CreateIntentRequest struct {
	BookingID  string            `json:"booking_id" binding:"required,max=100"`
	TravelerID string            `json:"traveler_id" binding:"required,max=100"`
	Amount     int64             `json:"amount" binding:"required,gt=0"`
	Currency   string            `json:"currency" binding:"required,len=3"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ConfirmPaymentRequest is the request body for payment confirmation.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
	BookingID       string `json:"booking_id" binding:"required,max=100"`
}

// RefundRequest is the request body for refunding an escrowed payment.
// Amount omitted or zero means the full held amount.
type RefundRequest struct {
	BookingID string `json:"booking_id" binding:"required,max=100"`
	Amount    int64  `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason    string `json:"reason" binding:"required,max=500"`
}

// ReleaseRequest is the request body for releasing an escrow hold.
type ReleaseRequest struct {
	Amount int64  `json:"amount,omitempty" binding:"omitempty,gt=0"`
	Reason string `json:"reason,omitempty" binding:"max=500"`
}

// DepositRequest is the request body for a direct wallet deposit.
type DepositRequest struct {
	Amount   int64  `json:"amount" binding:"required,gt=0"`
	Currency string `json:"currency" binding:"required,len=3"`
}

// WithdrawRequest is the request body for a wallet withdrawal.
type WithdrawRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// RegisterContactRequest is the request body for registering notification
// endpoints. Either field may be omitted to leave it unchanged-empty.
type RegisterContactRequest struct {
	PushToken string `json:"push_token,omitempty" binding:"max=512"`
	Email     string `json:"email,omitempty" binding:"omitempty,email"`
}

// IntentResponse is the response for intent creation.
type IntentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// TransactionResponse is the response body for transaction results.
type TransactionResponse struct {
	ID          string            `json:"id"`
	BookingID   string            `json:"booking_id,omitempty"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
	ProcessedAt *string           `json:"processed_at,omitempty"`
}

// WalletBalanceResponse is the response for balance query.
type WalletBalanceResponse struct {
	AvailableBalance int64  `json:"available_balance"`
	PendingBalance   int64  `json:"pending_balance"`
	TotalEarnings    int64  `json:"total_earnings"`
	TotalSpent       int64  `json:"total_spent"`
	TotalWithdrawals int64  `json:"total_withdrawals"`
	Currency         string `json:"currency"`
}

// EscrowStateResponse is the response for an escrow state query.
// Hold is omitted when the booking has no escrow row (state "none").
type EscrowStateResponse struct {
	BookingID string            `json:"booking_id"`
	State     string            `json:"state"`
	Hold      *EscrowHoldDetail `json:"hold,omitempty"`
}

// EscrowHoldDetail is the escrow row detail inside EscrowStateResponse.
type EscrowHoldDetail struct {
	TravelerID          string  `json:"traveler_id"`
	SenderID            string  `json:"sender_id"`
	Amount              int64   `json:"amount"`
	Currency            string  `json:"currency"`
	HoldTransactionID   string  `json:"hold_transaction_id"`
	SettleTransactionID *string `json:"settle_transaction_id,omitempty"`
	Reason              *string `json:"reason,omitempty"`
	CreatedAt           string  `json:"created_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// WalletStatsResponse is the response for per-user ledger aggregates.
type WalletStatsResponse struct {
	TotalTransactions int64 `json:"total_transactions"`
	TotalHeld         int64 `json:"total_held"`
	TotalReleased     int64 `json:"total_released"`
	TotalRefunded     int64 `json:"total_refunded"`
	TotalDeposited    int64 `json:"total_deposited"`
	TotalWithdrawn    int64 `json:"total_withdrawn"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}
