package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/coreprover/escrow-backend/internal/http/handlers/common"
	"github.com/coreprover/escrow-backend/internal/logger"
	"github.com/coreprover/escrow-backend/internal/service"
	"github.com/coreprover/escrow-backend/internal/ws"
)

// WSHandler апгрейдит соединение и подписывает клиента на события заказа.
type WSHandler struct {
	hub      *ws.Hub
	escrows  *service.EscrowService
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, escrows *service.EscrowService, checkOrigin func(r *http.Request) bool) *WSHandler {
	return &WSHandler{
		hub:     hub,
		escrows: escrows,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Subscribe GET /ws/orders/:id
// Заказ должен существовать на момент подписки.
func (h *WSHandler) Subscribe(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if _, err := h.escrows.GetEscrow(c.Request.Context(), orderID); err != nil {
		c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("ws: не удалось апгрейдить соединение")
		return
	}

	client := ws.NewClient(conn, h.hub, orderID)
	h.hub.Register(client)
	client.Run(c.Request.Context())
}
