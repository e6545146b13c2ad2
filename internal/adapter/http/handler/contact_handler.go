package handler

import (
	"crowdwave-ledger/internal/adapter/http/dto"
	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"
	"crowdwave-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// ContactHandler manages the caller's notification endpoints.
type ContactHandler struct {
	contacts ports.ContactRepository
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contacts ports.ContactRepository) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Register handles POST /api/v1/contacts. Upserts the caller's push token
// and email used for ledger notifications.
func (h *ContactHandler) Register(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req dto.RegisterContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if req.PushToken == "" && req.Email == "" {
		response.Error(c, apperror.Validation("push_token or email is required"))
		return
	}

	contact := &domain.Contact{
		UserID:    userID,
		PushToken: req.PushToken,
		Email:     req.Email,
	}
	if err := h.contacts.Upsert(c.Request.Context(), contact); err != nil {
		response.Error(c, apperror.ErrDatabaseError(err))
		return
	}

	response.OK(c, contact)
}
