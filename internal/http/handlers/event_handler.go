package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coreprover/escrow-backend/internal/http/handlers/common"
	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/service"
	"github.com/coreprover/escrow-backend/internal/validation"
)

// EventHandler принимает валидированные события наблюдателя цепочки
// и транслирует их в переходы машины состояний. Неизвестные поля
// отбрасываются здесь, на границе.
type EventHandler struct {
	escrows *service.EscrowService
}

func NewEventHandler(escrows *service.EscrowService) *EventHandler {
	return &EventHandler{escrows: escrows}
}

type txRefRequest struct {
	ChainID     uint64 `json:"chain_id" binding:"required"`
	TxID        string `json:"txid" binding:"required"`
	BlockHeight uint64 `json:"block_height"`
}

func (r txRefRequest) toModel() models.TxRef {
	return models.TxRef{ChainID: r.ChainID, TxID: r.TxID, BlockHeight: r.BlockHeight}
}

// Commit POST /events/commit
func (h *EventHandler) Commit(c *gin.Context) {
	var req struct {
		OrderID          uuid.UUID             `json:"order_id" binding:"required"`
		Buyer            string                `json:"buyer" binding:"required"`
		Seller           string                `json:"seller" binding:"required"`
		BuyerAmount      decimal.Decimal       `json:"buyer_amount" binding:"required"`
		SellerCommitment string                `json:"seller_commitment" binding:"required"`
		Profile          models.PaymentProfile `json:"profile" binding:"required"`
		ChainID          uint64                `json:"chain_id" binding:"required"`
		CommitTxid       txRefRequest          `json:"commit_txid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateActor("buyer", req.Buyer); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateActor("seller", req.Seller); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateCommitment(req.SellerCommitment); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.BuyerCommit(c.Request.Context(), models.BuyerCommittedEvent{
		OrderID:          req.OrderID,
		Buyer:            req.Buyer,
		Seller:           req.Seller,
		BuyerAmount:      req.BuyerAmount,
		SellerCommitment: req.SellerCommitment,
		Profile:          req.Profile,
		ChainID:          req.ChainID,
		CommitTxid:       req.CommitTxid.toModel(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, escrow)
}

// Accept POST /events/accept
func (h *EventHandler) Accept(c *gin.Context) {
	var req struct {
		OrderID    uuid.UUID    `json:"order_id" binding:"required"`
		ChainID    uint64       `json:"chain_id" binding:"required"`
		AcceptTxid txRefRequest `json:"accept_txid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.SellerAccept(c.Request.Context(), models.SellerAcceptedEvent{
		OrderID:    req.OrderID,
		ChainID:    req.ChainID,
		AcceptTxid: req.AcceptTxid.toModel(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// Fulfill POST /events/fulfill
func (h *EventHandler) Fulfill(c *gin.Context) {
	var req struct {
		OrderID     uuid.UUID    `json:"order_id" binding:"required"`
		FulfillTxid txRefRequest `json:"fulfill_txid" binding:"required"`
		BlockHeight uint64       `json:"block_height" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.SellerFulfill(c.Request.Context(), models.SellerFulfilledEvent{
		OrderID:     req.OrderID,
		FulfillTxid: req.FulfillTxid.toModel(),
		BlockHeight: req.BlockHeight,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// Claim POST /events/claim
func (h *EventHandler) Claim(c *gin.Context) {
	var req struct {
		OrderID   uuid.UUID    `json:"order_id" binding:"required"`
		ClaimTxid txRefRequest `json:"claim_txid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.SellerClaim(c.Request.Context(), models.SellerClaimedEvent{
		OrderID:   req.OrderID,
		ClaimTxid: req.ClaimTxid.toModel(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// Refund POST /events/refund
func (h *EventHandler) Refund(c *gin.Context) {
	var req struct {
		OrderID    uuid.UUID    `json:"order_id" binding:"required"`
		RefundTxid txRefRequest `json:"refund_txid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.SellerRefund(c.Request.Context(), models.SellerRefundedEvent{
		OrderID:    req.OrderID,
		RefundTxid: req.RefundTxid.toModel(),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// Withdraw POST /events/withdraw
func (h *EventHandler) Withdraw(c *gin.Context) {
	var req struct {
		OrderID      uuid.UUID     `json:"order_id" binding:"required"`
		WithdrawTxid *txRefRequest `json:"withdraw_txid,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	ev := models.BuyerWithdrawnEvent{OrderID: req.OrderID}
	if req.WithdrawTxid != nil {
		ref := req.WithdrawTxid.toModel()
		ev.WithdrawTxid = &ref
	}

	escrow, err := h.escrows.BuyerWithdraw(c.Request.Context(), ev)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// Dispute POST /events/dispute
func (h *EventHandler) Dispute(c *gin.Context) {
	var req struct {
		OrderID uuid.UUID `json:"order_id" binding:"required"`
		Reason  string    `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateLength("reason", req.Reason, 0, validation.MaxReasonLength); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.escrows.Dispute(c.Request.Context(), models.DisputeEvent{
		OrderID: req.OrderID,
		Reason:  req.Reason,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// CheckDeadline POST /orders/:id/check-deadline
// Вызывающий не авторизуется по роли: guard зависит только от (state, now).
func (h *EventHandler) CheckDeadline(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Now *models.TripleTimestamp `json:"now,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		common.RespondBadRequest(c, err.Error())
		return
	}

	check := models.CheckDeadlineRequest{OrderID: orderID}
	if req.Now != nil {
		if !req.Now.Consistent() {
			common.RespondBadRequest(c, "несогласованная тройная метка времени")
			return
		}
		check.Now = *req.Now
	} else {
		check.Now = h.escrows.Now()
	}

	escrow, err := h.escrows.CheckDeadline(c.Request.Context(), check)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, escrow)
}
