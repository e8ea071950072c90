package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/dashboard"
	"github.com/dukerupert/aideals/internal/model"
)

// Order feed actions.
const (
	ActionPaid           = "paid"
	ActionStatusChanged  = "status_changed"
	ActionDeadlineMissed = "deadline_missed"
)

// Message is one order change pushed to dashboard clients.
type Message struct {
	Type   string              `json:"type"`
	Action string              `json:"action"`
	Order  dashboard.OrderView `json:"order"`
}

func NewOrderMessage(action string, o model.Order, now time.Time) Message {
	return Message{
		Type:   "order_" + action,
		Action: action,
		Order:  dashboard.View(o, now),
	}
}

// Hub tracks connected dashboard clients and routes order changes to the
// buyer who owns the order and to every admin.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
	now     func() time.Time
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// PublishOrder sends the order change to its owner and to admins.
func (h *Hub) PublishOrder(action string, o model.Order) {
	h.send(auth.OrderOwnerKey(o.ID, o.UserID), NewOrderMessage(action, o, h.now()))
}

func (h *Hub) send(owner string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal order message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.admin && c.owner != owner {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping order message for slow client", "owner", c.owner)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
