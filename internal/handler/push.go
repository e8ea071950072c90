package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/push"
	"github.com/dukerupert/aideals/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/admin/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, fmt.Errorf("%w: endpoint, p256dh, and auth are required", checkout.ErrValidation))
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") {
		writeError(w, fmt.Errorf("%w: endpoint must be an https URL", checkout.ErrValidation))
		return
	}

	sub, err := h.pushStore.Subscribe(req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// VAPIDKey handles GET /api/admin/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// Test handles POST /api/admin/push/test
func (h *PushHandler) Test(w http.ResponseWriter, r *http.Request) {
	h.service.Alert(r.Context(), push.Payload{
		Title: "AI DEALS",
		Body:  "Push alerts are working on this device.",
		URL:   "/admin/orders",
		Tag:   "test",
	})
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
