package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/coreprover/escrow-backend/internal/goroutine"
)

// Hub управляет подписчиками заказов: наблюдатели одного order_id получают
// каждую смену состояния, чек и выпуск скидки по этому заказу.
type Hub struct {
	mu         sync.RWMutex
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
}

type message struct {
	orderID uuid.UUID
	payload []byte
}

// NewHub создаёт новый хаб.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 64),
	}
}

// Run запускает главный цикл хаба.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case msg := <-h.broadcast:
			h.send(msg.orderID, msg.payload)
		}
	}
}

// Register добавляет подписчика заказа.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister удаляет подписчика.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastToOrder отправляет событие всем подписчикам заказа.
// Поле "type" несёт имя события, "data" — полезную нагрузку.
func (h *Hub) BroadcastToOrder(orderID uuid.UUID, event string, data any) error {
	payload := map[string]any{
		"type": event,
		"data": data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ws: не удалось сериализовать сообщение: %w", err)
	}

	h.broadcast <- message{orderID: orderID, payload: raw}
	return nil
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.orderID]; !ok {
		h.clients[client.orderID] = make(map[*Client]struct{})
	}
	h.clients[client.orderID][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.orderID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.clients, client.orderID)
		}
	}
}

func (h *Hub) send(orderID uuid.UUID, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[orderID] {
		select {
		case client.send <- payload:
		default:
			// Медленный подписчик: закрываем асинхронно, не задерживая рассылку.
			goroutine.SafeGo(client.Close)
		}
	}
}
