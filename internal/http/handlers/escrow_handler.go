package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreprover/escrow-backend/internal/http/handlers/common"
	"github.com/coreprover/escrow-backend/internal/service"
)

// EscrowHandler отдаёт текущее состояние эскроу и выпущенный чек.
type EscrowHandler struct {
	escrows  *service.EscrowService
	receipts *service.ReceiptService
}

func NewEscrowHandler(escrows *service.EscrowService, receipts *service.ReceiptService) *EscrowHandler {
	return &EscrowHandler{escrows: escrows, receipts: receipts}
}

// GetOrder GET /orders/:id
func (h *EscrowHandler) GetOrder(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.GetEscrow(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// GetReceipt GET /orders/:id/receipt
func (h *EscrowHandler) GetReceipt(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	receipt, err := h.receipts.GetReceipt(c.Request.Context(), orderID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, receipt)
}
