package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/dashboard"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/store"
)

type OrderHandler struct {
	orders *store.OrderStore
	logger *slog.Logger
	now    func() time.Time
}

func NewOrderHandler(orders *store.OrderStore, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger, now: time.Now}
}

// List handles GET /api/orders. Guests see the single order their checkout
// token was issued for; signed-in buyers see the orders tied to their
// account. Admins have no buyer orders and get an empty list.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var (
		orders []model.Order
		err    error
	)
	switch id.Role {
	case auth.RoleGuest:
		orders, err = h.guestOrders(id)
	case auth.RoleUser:
		orders, err = h.orders.ListByUser(id.UserID)
	}
	if err != nil {
		h.logger.Error("list orders", "owner", id.Owner(), "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard.Views(orders, h.now()))
}

func (h *OrderHandler) guestOrders(id auth.Identity) ([]model.Order, error) {
	o, err := h.orders.GetByID(id.OrderID)
	if err != nil || o == nil {
		return nil, err
	}
	if !id.OwnsOrder(o.ID, o.UserID) || !strings.EqualFold(o.BuyerEmail, id.Email) {
		return nil, nil
	}
	return []model.Order{*o}, nil
}
