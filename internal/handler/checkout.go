package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/aideals/internal/checkout"
)

type checkoutCreator interface {
	Create(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type CheckoutHandler struct {
	service checkoutCreator
	logger  *slog.Logger
}

func NewCheckoutHandler(svc checkoutCreator, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// Create handles POST /api/checkout
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Warn("checkout failed", "tool_id", req.ToolID, "plan_id", req.PlanID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
