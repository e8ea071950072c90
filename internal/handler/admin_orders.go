package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/dashboard"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/store"
	"github.com/dukerupert/aideals/internal/websocket"
)

const (
	defaultOrderPage = 50
	maxOrderPage     = 200
)

type AdminOrderHandler struct {
	orders   *store.OrderStore
	notifier orderNotifier
	feed     orderPublisher
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdminOrderHandler(orders *store.OrderStore, n orderNotifier, feed orderPublisher, logger *slog.Logger) *AdminOrderHandler {
	return &AdminOrderHandler{orders: orders, notifier: n, feed: feed, logger: logger, now: time.Now}
}

// List handles GET /api/admin/orders?status=&limit=&offset=
func (h *AdminOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "", model.OrderPending, model.OrderProcessing, model.OrderActive, model.OrderCancelled:
	default:
		writeError(w, fmt.Errorf("%w: unknown status %q", checkout.ErrValidation, status))
		return
	}

	limit := defaultOrderPage
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		limit = min(v, maxOrderPage)
	}
	offset := 0
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		offset = v
	}

	orders, err := h.orders.List(status, limit, offset)
	if err != nil {
		h.logger.Error("list orders", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.Views(orders, h.now()))
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PATCH /api/admin/orders/{id}/status. Only pending or
// processing orders move, and only to active or cancelled.
func (h *AdminOrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Status != model.OrderActive && req.Status != model.OrderCancelled {
		writeError(w, fmt.Errorf("%w: %q: status must be active or cancelled", store.ErrInvalidTransition, req.Status))
		return
	}

	ok, err := h.orders.Transition(orderID, req.Status, h.now().UTC())
	if err != nil {
		h.logger.Error("transition order", "order_id", orderID, "status", req.Status, "error", err)
		writeError(w, err)
		return
	}
	order, err := h.orders.GetByID(orderID)
	if err != nil {
		h.logger.Error("load order", "order_id", orderID, "error", err)
		writeError(w, err)
		return
	}
	if order == nil {
		writeError(w, fmt.Errorf("%w: order %s", checkout.ErrNotFound, orderID))
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("%w: order %s is %s", store.ErrInvalidTransition, orderID, order.Status))
		return
	}

	h.logger.Info("order status changed", "order_id", order.ID, "status", order.Status)
	if order.Status == model.OrderActive {
		if err := h.notifier.OrderActivated(r.Context(), *order); err != nil {
			h.logger.Error("send activation email", "order_id", order.ID, "error", err)
		}
	}
	h.feed.PublishOrder(websocket.ActionStatusChanged, *order)
	writeJSON(w, http.StatusOK, dashboard.View(*order, h.now()))
}
