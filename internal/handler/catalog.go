package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/aideals/internal/checkout"
	"github.com/dukerupert/aideals/internal/model"
	"github.com/dukerupert/aideals/internal/store"
)

type CatalogHandler struct {
	tools  *store.ToolStore
	plans  *store.PlanStore
	logger *slog.Logger
}

func NewCatalogHandler(tools *store.ToolStore, plans *store.PlanStore, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{tools: tools, plans: plans, logger: logger}
}

// ListTools handles GET /api/tools
func (h *CatalogHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.tools.List(true)
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

// ListPlans handles GET /api/tools/{toolID}/plans
func (h *CatalogHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("toolID")
	tool, err := h.tools.GetByToolID(toolID)
	if err != nil {
		h.logger.Error("load tool", "tool_id", toolID, "error", err)
		writeError(w, err)
		return
	}
	if tool == nil || !tool.IsActive {
		writeError(w, fmt.Errorf("%w: tool %s", checkout.ErrNotFound, toolID))
		return
	}

	plans, err := h.plans.List(toolID, true)
	if err != nil {
		h.logger.Error("list plans", "tool_id", toolID, "error", err)
		writeError(w, err)
		return
	}
	if plans == nil {
		plans = []model.ToolPlan{}
	}
	writeJSON(w, http.StatusOK, plans)
}
