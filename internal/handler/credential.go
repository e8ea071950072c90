package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/aideals/internal/auth"
	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/store"
)

type credentialVault interface {
	Encrypt(plaintext, context string) (string, error)
	Decrypt(blob, context string) (string, error)
}

type CredentialHandler struct {
	orders      *store.OrderStore
	credentials *store.CredentialStore
	vault       credentialVault
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewCredentialHandler(orders *store.OrderStore, creds *store.CredentialStore, v credentialVault, logger *slog.Logger) *CredentialHandler {
	return &CredentialHandler{
		orders:      orders,
		credentials: creds,
		vault:       v,
		validate:    checkout.NewValidator(),
		logger:      logger,
	}
}

type credentialRequest struct {
	OrderID  string `json:"order_id" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=100"`
}

// Create handles POST /api/credentials. Only the buyer who owns the order
// may attach a credential to it.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req credentialRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.validate.Struct(req); err != nil {
		writeError(w, fmt.Errorf("%w: %s", checkout.ErrValidation, checkout.ValidationMessage(err)))
		return
	}

	order, err := h.orders.GetByID(req.OrderID)
	if err != nil {
		h.logger.Error("load order", "order_id", req.OrderID, "error", err)
		writeError(w, err)
		return
	}
	if order == nil || !id.OwnsOrder(order.ID, order.UserID) {
		if order != nil {
			h.logger.Warn("credential for order not owned by caller", "order_id", order.ID, "owner", id.Owner())
		}
		writeError(w, fmt.Errorf("%w: order %s", checkout.ErrNotFound, req.OrderID))
		return
	}

	blob, err := h.vault.Encrypt(req.Password, order.ID)
	if err != nil {
		h.logger.Error("encrypt credential", "order_id", order.ID, "error", err)
		writeError(w, err)
		return
	}
	cred, err := h.credentials.Create(order.ID, req.Email, blob)
	if err != nil {
		h.logger.Error("insert credential", "order_id", order.ID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

// Reveal handles GET /api/admin/orders/{id}/credential
func (h *CredentialHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	cred, err := h.credentials.LatestForOrder(orderID)
	if err != nil {
		h.logger.Error("load credential", "order_id", orderID, "error", err)
		writeError(w, err)
		return
	}
	if cred == nil {
		writeError(w, fmt.Errorf("%w: no credential for order %s", checkout.ErrNotFound, orderID))
		return
	}

	password, err := h.vault.Decrypt(cred.EncryptedPassword, cred.OrderID)
	if err != nil {
		h.logger.Error("decrypt credential", "order_id", orderID, "credential_id", cred.ID, "error", err)
		writeError(w, err)
		return
	}
	h.logger.Info("credential revealed", "order_id", orderID, "credential_id", cred.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id": cred.OrderID,
		"email":    cred.Email,
		"password": password,
	})
}
