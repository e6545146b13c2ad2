package handler

import (
	"crowdwave-ledger/internal/adapter/http/dto"
	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"
	"crowdwave-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// EscrowHandler exposes the escrow state machine over HTTP.
type EscrowHandler struct {
	escrowSvc ports.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(escrowSvc ports.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowSvc: escrowSvc}
}

// GetState handles GET /api/v1/escrow/:bookingID.
func (h *EscrowHandler) GetState(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	bookingID := c.Param("bookingID")
	if bookingID == "" {
		response.Error(c, apperror.Validation("bookingID is required"))
		return
	}

	state, hold, err := h.escrowSvc.StateOf(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toEscrowStateResponse(bookingID, state, hold))
}

// Release handles POST /api/v1/escrow/:bookingID/release. Called when a
// delivery is confirmed; replaying a completed release returns the original
// transaction.
func (h *EscrowHandler) Release(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		return
	}

	bookingID := c.Param("bookingID")
	if bookingID == "" {
		response.Error(c, apperror.Validation("bookingID is required"))
		return
	}

	var req dto.ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.escrowSvc.Release(c.Request.Context(), ports.SettleRequest{
		BookingID: bookingID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toTransactionResponse(txn))
}

func toEscrowStateResponse(bookingID string, state domain.EscrowState, hold *domain.EscrowHold) dto.EscrowStateResponse {
	resp := dto.EscrowStateResponse{
		BookingID: bookingID,
		State:     string(state),
	}
	if hold == nil {
		return resp
	}

	detail := &dto.EscrowHoldDetail{
		TravelerID:        hold.TravelerID,
		SenderID:          hold.SenderID,
		Amount:            hold.Amount,
		Currency:          hold.Currency,
		HoldTransactionID: hold.HoldTransactionID.String(),
		Reason:            hold.Reason,
		CreatedAt:         hold.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:         hold.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if hold.SettleTransactionID != nil {
		s := hold.SettleTransactionID.String()
		detail.SettleTransactionID = &s
	}
	resp.Hold = detail
	return resp
}
