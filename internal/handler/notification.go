package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/notify"
	"github.com/dukerupert/aideals/internal/store"
)

type notificationSender interface {
	Send(ctx context.Context, kind string, o model.Order) error
}

type NotificationHandler struct {
	orders   *store.OrderStore
	notifier notificationSender
	logger   *slog.Logger
}

func NewNotificationHandler(orders *store.OrderStore, n notificationSender, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{orders: orders, notifier: n, logger: logger}
}

type notificationRequest struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// Send handles POST /api/notifications
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.Type == "" || req.OrderID == "" {
		writeError(w, fmt.Errorf("%w: type and orderId are required", checkout.ErrValidation))
		return
	}
	if !notify.KnownType(req.Type) {
		writeError(w, fmt.Errorf("%w: %q", notify.ErrUnknownType, req.Type))
		return
	}

	order, err := h.orders.GetByID(req.OrderID)
	if err != nil {
		h.logger.Error("load order", "order_id", req.OrderID, "error", err)
		writeError(w, err)
		return
	}
	if order == nil {
		writeError(w, fmt.Errorf("%w: order %s", checkout.ErrNotFound, req.OrderID))
		return
	}

	if err := h.notifier.Send(r.Context(), req.Type, *order); err != nil {
		h.logger.Error("send notification", "type", req.Type, "order_id", order.ID, "error", err)
		writeError(w, err)
		return
	}
	h.logger.Info("notification sent", "type", req.Type, "order_id", order.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
