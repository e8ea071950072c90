package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/planimport"
	"github.com/dukerupert/aideals/internal/store"
)

const maxImportBody = 5 << 20

const (
	ImportModeAdd     = "add"
	ImportModeReplace = "replace"
)

type exportArchiver interface {
	PutExport(ctx context.Context, filename string, data []byte) (string, error)
}

type AdminCatalogHandler struct {
	tools    *store.ToolStore
	plans    *store.PlanStore
	archive  exportArchiver
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAdminCatalogHandler creates the catalog console. archive may be nil when
// object storage is not configured.
func NewAdminCatalogHandler(tools *store.ToolStore, plans *store.PlanStore, archive exportArchiver, logger *slog.Logger) *AdminCatalogHandler {
	return &AdminCatalogHandler{
		tools:    tools,
		plans:    plans,
		archive:  archive,
		validate: checkout.NewValidator(),
		logger:   logger,
	}
}

type toolRequest struct {
	ToolID         string          `json:"tool_id" validate:"required,max=100,excludesall=:/"`
	Name           string          `json:"name" validate:"required,max=200"`
	Category       string          `json:"category" validate:"max=100"`
	Price          decimal.Decimal `json:"price"`
	DeliveryType   string          `json:"delivery_type" validate:"required,oneof=provide_account subscribe_for_them email_only link_access api_key"`
	AccessURL      string          `json:"access_url" validate:"omitempty,url,max=500"`
	ActivationTime int             `json:"activation_time" validate:"min=0,max=8760"`
	IsActive       *bool           `json:"is_active"`
}

type planRequest struct {
	ToolID         string           `json:"tool_id" validate:"required,max=100"`
	PlanID         string           `json:"plan_id" validate:"required,max=100,excludesall=:/"`
	PlanName       string           `json:"plan_name" validate:"required,max=200"`
	MonthlyPrice   *decimal.Decimal `json:"monthly_price"`
	DeliveryType   string           `json:"delivery_type" validate:"required,oneof=provide_account subscribe_for_them email_only link_access api_key"`
	ActivationTime int              `json:"activation_time" validate:"min=0,max=8760"`
	IsActive       *bool            `json:"is_active"`
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *AdminCatalogHandler) invalid(err error) error {
	return fmt.Errorf("%w: %s", checkout.ErrValidation, checkout.ValidationMessage(err))
}

// ListTools handles GET /api/admin/tools
func (h *AdminCatalogHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.List(false)
	if err != nil {
		h.logger.Error("list tools", "error", err)
		writeError(w, err)
		return
	}
	if tools == nil {
		tools = []model.Tool{}
	}
	writeJSON(w, http.StatusOK, tools)
}

// UpsertTool handles PUT /api/admin/tools
func (h *AdminCatalogHandler) UpsertTool(w http.ResponseWriter, r *http.Request) {
	var req toolRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ToolID = planimport.NormalizeID(req.ToolID)
	req.Name = planimport.CleanText(req.Name)
	req.Category = planimport.CleanText(req.Category)
	req.AccessURL = strings.TrimSpace(req.AccessURL)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.invalid(err))
		return
	}
	if req.Price.IsNegative() {
		writeError(w, fmt.Errorf("%w: price must not be negative", checkout.ErrValidation))
		return
	}

	tool, err := h.tools.Upsert(model.Tool{
		ToolID:         req.ToolID,
		Name:           req.Name,
		Category:       req.Category,
		Price:          req.Price,
		DeliveryType:   req.DeliveryType,
		AccessURL:      req.AccessURL,
		ActivationTime: req.ActivationTime,
		IsActive:       req.IsActive == nil || *req.IsActive,
	})
	if err != nil {
		h.logger.Error("upsert tool", "tool_id", req.ToolID, "error", err)
		writeError(w, err)
		return
	}
	h.logger.Info("tool saved", "tool_id", tool.ToolID)
	writeJSON(w, http.StatusOK, tool)
}

// SetToolActive handles PATCH /api/admin/tools/{toolID}/active
func (h *AdminCatalogHandler) SetToolActive(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("toolID")
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IsActive == nil {
		writeError(w, fmt.Errorf("%w: is_active is required", checkout.ErrValidation))
		return
	}
	ok, err := h.tools.SetActive(toolID, *req.IsActive)
	if err != nil {
		h.logger.Error("toggle tool", "tool_id", toolID, "error", err)
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("%w: tool %s", checkout.ErrNotFound, toolID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool_id": toolID, "is_active": *req.IsActive})
}

// ListPlans handles GET /api/admin/plans?tool_id=
func (h *AdminCatalogHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.URL.Query().Get("tool_id"), false)
	if err != nil {
		h.logger.Error("list plans", "error", err)
		writeError(w, err)
		return
	}
	if plans == nil {
		plans = []model.ToolPlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

// UpsertPlan handles PUT /api/admin/plans
func (h *AdminCatalogHandler) UpsertPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ToolID = planimport.NormalizeID(req.ToolID)
	req.PlanID = planimport.NormalizeID(req.PlanID)
	req.PlanName = planimport.CleanText(req.PlanName)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, h.invalid(err))
		return
	}
	if req.MonthlyPrice != nil && req.MonthlyPrice.IsNegative() {
		writeError(w, fmt.Errorf("%w: monthly_price must not be negative", checkout.ErrValidation))
		return
	}

	tool, err := h.tools.GetByToolID(req.ToolID)
	if err != nil {
		h.logger.Error("load tool", "tool_id", req.ToolID, "error", err)
		writeError(w, err)
		return
	}
	if tool == nil {
		writeError(w, fmt.Errorf("%w: tool %s", checkout.ErrNotFound, req.ToolID))
		return
	}

	plan, err := h.plans.Upsert(model.ToolPlan{
		ToolID:         req.ToolID,
		PlanID:         req.PlanID,
		PlanName:       req.PlanName,
		MonthlyPrice:   req.MonthlyPrice,
		DeliveryType:   req.DeliveryType,
		ActivationTime: req.ActivationTime,
		IsActive:       req.IsActive == nil || *req.IsActive,
	})
	if err != nil {
		h.logger.Error("upsert plan", "plan", model.PlanKey(req.ToolID, req.PlanID), "error", err)
		writeError(w, err)
		return
	}
	h.logger.Info("plan saved", "plan", plan.Key())
	writeJSON(w, http.StatusOK, plan)
}

// SetPlanActive handles PATCH /api/admin/plans/{id}/active
func (h *AdminCatalogHandler) SetPlanActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid id", checkout.ErrValidation))
		return
	}
	var req activeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IsActive == nil {
		writeError(w, fmt.Errorf("%w: is_active is required", checkout.ErrValidation))
		return
	}
	ok, err := h.plans.SetActive(id, *req.IsActive)
	if err != nil {
		h.logger.Error("toggle plan", "id", id, "error", err)
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("%w: plan %d", checkout.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": *req.IsActive})
}

type previewResponse struct {
	planimport.Diff
	Errors []string `json:"errors"`
}

// PreviewImport handles POST /api/admin/plans/import/preview
func (h *AdminCatalogHandler) PreviewImport(w http.ResponseWriter, r *http.Request) {
	res, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	existing, err := h.plans.List("", false)
	if err != nil {
		h.logger.Error("list plans", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Diff:   planimport.Reconcile(res.Plans(), existing),
		Errors: res.RowErrors(),
	})
}

// CommitImport handles POST /api/admin/plans/import?mode=add|replace. Add
// mode writes nothing if any row already exists.
func (h *AdminCatalogHandler) CommitImport(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = ImportModeAdd
	}
	if mode != ImportModeAdd && mode != ImportModeReplace {
		writeError(w, fmt.Errorf("%w: mode must be add or replace", checkout.ErrValidation))
		return
	}

	res, ok := h.parseUpload(w, r)
	if !ok {
		return
	}
	if res.Errors != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "csv has invalid rows",
			"errors": res.RowErrors(),
		})
		return
	}
	plans := res.Plans()
	if len(plans) == 0 {
		writeError(w, fmt.Errorf("%w: csv has no plans", checkout.ErrValidation))
		return
	}

	var err error
	if mode == ImportModeAdd {
		err = h.plans.InsertBatch(plans)
	} else {
		err = h.plans.UpsertBatch(plans)
	}
	if err != nil {
		if !errors.Is(err, store.ErrConflict) {
			h.logger.Error("import plans", "mode", mode, "error", err)
		}
		writeError(w, err)
		return
	}
	h.logger.Info("plans imported", "mode", mode, "count", len(plans))
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "imported": len(plans)})
}

func (h *AdminCatalogHandler) parseUpload(w http.ResponseWriter, r *http.Request) (*planimport.Result, bool) {
	body, err := readBody(w, r, maxImportBody)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "csv too large")
			return nil, false
		}
		writeMessage(w, http.StatusBadRequest, "read body")
		return nil, false
	}
	res, err := planimport.Parse(bytes.NewReader(body))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", checkout.ErrValidation, err))
		return nil, false
	}

	tools, err := h.tools.List(false)
	if err != nil {
		h.logger.Error("list tools", "error", err)
		writeError(w, err)
		return nil, false
	}
	known := make(map[string]bool, len(tools))
	for _, t := range tools {
		known[t.ToolID] = true
	}
	res.RejectUnknownTools(func(toolID string) bool { return known[toolID] })
	return res, true
}

// Export handles GET /api/admin/plans/export?tool_id=&archive=1
func (h *AdminCatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	toolID := q.Get("tool_id")
	archive := parseBoolParam(q.Get("archive"))
	if archive && h.archive == nil {
		writeError(w, fmt.Errorf("%w: export archive is not configured", checkout.ErrValidation))
		return
	}

	plans, err := h.plans.List(toolID, false)
	if err != nil {
		h.logger.Error("list plans", "tool_id", toolID, "error", err)
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := planimport.Export(&buf, plans); err != nil {
		h.logger.Error("export plans", "error", err)
		writeError(w, err)
		return
	}

	filename := planimport.Filename(toolID)
	if archive {
		key, err := h.archive.PutExport(r.Context(), filename, buf.Bytes())
		if err != nil {
			h.logger.Error("archive export", "filename", filename, "error", err)
			writeMessage(w, http.StatusBadGateway, "archive upload failed")
			return
		}
		h.logger.Info("export archived", "key", key, "plans", len(plans))
		w.Header().Set("X-Archive-Key", key)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
