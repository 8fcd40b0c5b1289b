package handlers

import (
	"net/http"

	"github.com/vantagefolio/valora/internal/marketdata"
	"github.com/vantagefolio/valora/pkg/logger"
)

// OverridesHandler handles subjective override API endpoints
// ⭐ SSOT: 주관적 입력 오버라이드 API 핸들러는 이 구조체에서만
type OverridesHandler struct {
	service *marketdata.OverrideService
	logger  *logger.Logger
}

// NewOverridesHandler creates a new overrides handler
func NewOverridesHandler(service *marketdata.OverrideService, log *logger.Logger) *OverridesHandler {
	return &OverridesHandler{
		service: service,
		logger:  log,
	}
}

// List returns the overrides for one symbol and method
// GET /api/overrides?symbol=&method=
func (h *OverridesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "Missing 'symbol' query parameter")
		return
	}

	overrides, err := h.service.List(r.Context(), symbol, q.Get("method"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, overrides)
}

// SetOverrideRequest pins one subjective input value
type SetOverrideRequest struct {
	Symbol    string  `json:"symbol" validate:"required"`
	MethodKey string  `json:"method_key" validate:"required"`
	InputKey  string  `json:"input_key" validate:"required"`
	Value     float64 `json:"value"`
}

// Set stores a per-instrument subjective override
// PUT /api/overrides
func (h *OverridesHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req SetOverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	override, err := h.service.Set(r.Context(), req.Symbol, req.MethodKey, req.InputKey, req.Value)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"symbol":    req.Symbol,
		"input_key": req.InputKey,
	}).Info("Subjective override set")

	respondJSON(w, http.StatusOK, override)
}

// ClearOverrideRequest names the override to remove
type ClearOverrideRequest struct {
	Symbol    string `json:"symbol" validate:"required"`
	MethodKey string `json:"method_key" validate:"required"`
	InputKey  string `json:"input_key" validate:"required"`
}

// Clear removes an override, falling back to the default cascade
// DELETE /api/overrides
func (h *OverridesHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ClearOverrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Clear(r.Context(), req.Symbol, req.MethodKey, req.InputKey); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
