package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreprover/escrow-backend/internal/http/handlers/common"
	"github.com/coreprover/escrow-backend/internal/models"
	"github.com/coreprover/escrow-backend/internal/service"
)

// DiscountHandler — публичная конечная точка погашения скидок.
type DiscountHandler struct {
	discounts *service.DiscountService
}

func NewDiscountHandler(discounts *service.DiscountService) *DiscountHandler {
	return &DiscountHandler{discounts: discounts}
}

// Redeem POST /discounts/redeem
// Предъявитель заявляет процент и срок действия; несовпадение с выпущенными
// значениями отклоняется до любой мутации.
func (h *DiscountHandler) Redeem(c *gin.Context) {
	var req struct {
		Nullifier         string `json:"nullifier" binding:"required"`
		ClaimedPct        uint8  `json:"claimed_pct" binding:"required"`
		ClaimedExpiration uint64 `json:"claimed_expiration" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	applied, err := h.discounts.Redeem(c.Request.Context(), models.RedeemRequest{
		Nullifier:         req.Nullifier,
		ClaimedPct:        req.ClaimedPct,
		ClaimedExpiration: req.ClaimedExpiration,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, applied)
}
