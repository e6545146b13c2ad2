package handler

import (
	"crowdwave-ledger/internal/adapter/http/dto"
	"crowdwave-ledger/internal/adapter/http/middleware"
	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"
	"crowdwave-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles the payment-provider flow feeding the escrow ledger.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreateIntent handles POST /api/v1/payments/intent.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	senderID, ok := callerID(c)
	if !ok {
		return
	}

	var req dto.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	intent, err := h.paymentSvc.CreateIntent(c.Request.Context(), ports.CreateIntentRequest{
		BookingID:  req.BookingID,
		SenderID:   senderID,
		TravelerID: req.TravelerID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Metadata:   req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.IntentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Status:       intent.Status,
	})
}

// ConfirmPayment handles POST /api/v1/payments/confirm.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.paymentSvc.ConfirmPayment(c.Request.Context(), ports.ConfirmPaymentRequest{
		PaymentIntentID: req.PaymentIntentID,
		BookingID:       req.BookingID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// RefundPayment handles POST /api/v1/payments/refund.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.paymentSvc.RefundPayment(c.Request.Context(), ports.RefundPaymentRequest{
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

// callerID extracts the authenticated user id set by the JWT middleware.
func callerID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserID)
	if userID == "" {
		response.Error(c, apperror.ErrInvalidToken())
		return "", false
	}
	return userID, true
}

// toTransactionResponse converts domain.Transaction to DTO.
func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:          tx.ID.String(),
		BookingID:   tx.BookingID,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Description: tx.Description,
		Metadata:    tx.Metadata,
		CreatedAt:   tx.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if tx.ProcessedAt != nil {
		s := tx.ProcessedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.ProcessedAt = &s
	}
	return resp
}
