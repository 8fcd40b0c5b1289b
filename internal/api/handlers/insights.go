package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/insights"
	"github.com/vantagefolio/valora/pkg/logger"
)

// InsightsHandler handles insight API endpoints
// ⭐ SSOT: 인사이트 API 핸들러는 이 구조체에서만
type InsightsHandler struct {
	service      *insights.Service
	materializer *insights.Materializer
	logger       *logger.Logger
}

// NewInsightsHandler creates a new insights handler
func NewInsightsHandler(service *insights.Service, materializer *insights.Materializer, log *logger.Logger) *InsightsHandler {
	return &InsightsHandler{
		service:      service,
		materializer: materializer,
		logger:       log,
	}
}

// CreateInsightRequest represents an insight creation request
type CreateInsightRequest struct {
	Title     string            `json:"title" validate:"required"`
	Thesis    string            `json:"thesis"`
	Status    string            `json:"status"`
	ValidFrom *string           `json:"valid_from"`
	ValidTo   *string           `json:"valid_to"`
	Tags      []string          `json:"tags"`
	Meta      map[string]string `json:"meta"`
}

// Create registers a new insight
// POST /api/insights
func (h *InsightsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInsightRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	from, ok := parseOptionalDate(w, req.ValidFrom, "valid_from")
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, req.ValidTo, "valid_to")
	if !ok {
		return
	}

	insight, err := h.service.Create(r.Context(), insights.CreateInsightInput{
		Title:     req.Title,
		Thesis:    req.Thesis,
		Status:    contracts.InsightStatus(req.Status),
		ValidFrom: from,
		ValidTo:   to,
		Tags:      req.Tags,
		Meta:      req.Meta,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"insight_id": insight.ID,
		"title":      insight.Title,
	}).Info("Insight created")

	respondJSON(w, http.StatusCreated, insight)
}

// Get returns one insight
// GET /api/insights/{id}
func (h *InsightsHandler) Get(w http.ResponseWriter, r *http.Request) {
	insight, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, insight)
}

// UpdateInsightRequest is a partial insight patch. Null-valued fields
// are left untouched; empty-string dates clear the window bound.
type UpdateInsightRequest struct {
	Title     *string  `json:"title"`
	Thesis    *string  `json:"thesis"`
	Status    *string  `json:"status"`
	ValidFrom *string  `json:"valid_from"`
	ValidTo   *string  `json:"valid_to"`
	Tags      []string `json:"tags"`
}

// Update patches an insight
// PATCH /api/insights/{id}
func (h *InsightsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateInsightRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input := insights.UpdateInsightInput{
		Title:  req.Title,
		Thesis: req.Thesis,
		Tags:   req.Tags,
	}
	if req.Status != nil {
		status := contracts.InsightStatus(*req.Status)
		input.Status = &status
	}
	if req.ValidFrom != nil {
		if *req.ValidFrom == "" {
			input.ClearFrom = true
		} else {
			from, ok := parseOptionalDate(w, req.ValidFrom, "valid_from")
			if !ok {
				return
			}
			input.ValidFrom = from
		}
	}
	if req.ValidTo != nil {
		if *req.ValidTo == "" {
			input.ClearTo = true
		} else {
			to, ok := parseOptionalDate(w, req.ValidTo, "valid_to")
			if !ok {
				return
			}
			input.ValidTo = to
		}
	}

	insight, err := h.service.Update(r.Context(), mux.Vars(r)["id"], input)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, insight)
}

// Delete soft-deletes an insight
// DELETE /api/insights/{id}
func (h *InsightsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.service.Delete(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"insight_id": id,
	}).Info("Insight deleted")

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// ScopeRuleRequest represents one targeting rule
type ScopeRuleRequest struct {
	ID        string `json:"id"`
	ScopeType string `json:"scope_type" validate:"required"`
	ScopeKey  string `json:"scope_key" validate:"required"`
	Mode      string `json:"mode" validate:"required"`
	Enabled   bool   `json:"enabled"`
}

// UpsertScopeRule adds or replaces a targeting rule
// PUT /api/insights/{id}/rules
func (h *InsightsHandler) UpsertScopeRule(w http.ResponseWriter, r *http.Request) {
	var req ScopeRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rule, err := h.service.UpsertScopeRule(r.Context(), mux.Vars(r)["id"], contracts.InsightScopeRule{
		ID:        req.ID,
		ScopeType: contracts.ScopeType(req.ScopeType),
		ScopeKey:  req.ScopeKey,
		Mode:      contracts.ScopeMode(req.Mode),
		Enabled:   req.Enabled,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

// DeleteScopeRule removes a targeting rule
// DELETE /api/insights/{id}/rules/{ruleID}
func (h *InsightsHandler) DeleteScopeRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteScopeRule(r.Context(), vars["id"], vars["ruleID"]); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": vars["ruleID"]})
}

// ChannelRequest represents one effect channel
type ChannelRequest struct {
	ID        string `json:"id"`
	MethodKey string `json:"method_key" validate:"required"`
	MetricKey string `json:"metric_key" validate:"required"`
	Stage     string `json:"stage" validate:"required"`
	Operator  string `json:"operator" validate:"required"`
	Priority  int    `json:"priority"`
	Enabled   bool   `json:"enabled"`
}

// UpsertChannel adds or replaces an effect channel
// PUT /api/insights/{id}/channels
func (h *InsightsHandler) UpsertChannel(w http.ResponseWriter, r *http.Request) {
	var req ChannelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	channel, err := h.service.UpsertChannel(r.Context(), mux.Vars(r)["id"], contracts.InsightEffectChannel{
		ID:        req.ID,
		MethodKey: req.MethodKey,
		MetricKey: req.MetricKey,
		Stage:     contracts.MetricLayer(req.Stage),
		Operator:  contracts.EffectOperator(req.Operator),
		Priority:  req.Priority,
		Enabled:   req.Enabled,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, channel)
}

// DeleteChannel removes an effect channel and its points
// DELETE /api/insights/{id}/channels/{channelID}
func (h *InsightsHandler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.DeleteChannel(r.Context(), vars["id"], vars["channelID"]); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": vars["channelID"]})
}

// EffectPointRequest is one dated effect value
type EffectPointRequest struct {
	EffectDate  string  `json:"effect_date" validate:"required"`
	EffectValue float64 `json:"effect_value"`
}

// ReplacePointsRequest swaps a channel's full effect series
type ReplacePointsRequest struct {
	Points []EffectPointRequest `json:"points" validate:"dive"`
}

// ReplacePoints replaces a channel's effect series atomically
// PUT /api/insights/{id}/channels/{channelID}/points
func (h *InsightsHandler) ReplacePoints(w http.ResponseWriter, r *http.Request) {
	var req ReplacePointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	channelID := mux.Vars(r)["channelID"]
	points := make([]contracts.InsightEffectPoint, 0, len(req.Points))
	for _, p := range req.Points {
		date, err := time.Parse("2006-01-02", p.EffectDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'effect_date' format (expected YYYY-MM-DD)")
			return
		}
		points = append(points, contracts.InsightEffectPoint{
			ChannelID:   channelID,
			EffectDate:  date,
			EffectValue: p.EffectValue,
		})
	}

	if err := h.service.ReplacePoints(r.Context(), channelID, points); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "replaced",
		"count":  len(points),
	})
}

// ExclusionRequest names one symbol to exclude or restore
type ExclusionRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

// ExcludeTarget manually removes a symbol from an insight's targets
// POST /api/insights/{id}/exclusions
func (h *InsightsHandler) ExcludeTarget(w http.ResponseWriter, r *http.Request) {
	var req ExclusionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ExcludeTarget(r.Context(), mux.Vars(r)["id"], req.Symbol); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "excluded", "symbol": req.Symbol})
}

// RestoreTarget lifts a manual exclusion
// DELETE /api/insights/{id}/exclusions/{symbol}
func (h *InsightsHandler) RestoreTarget(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.service.RestoreTarget(r.Context(), vars["id"], vars["symbol"]); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "restored", "symbol": vars["symbol"]})
}

// Targets returns the cached target set, rebuilding on miss
// GET /api/insights/{id}/targets
func (h *InsightsHandler) Targets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.materializer.Targets(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, targets)
}

// PreviewTargets resolves the target set without touching the cache
// GET /api/insights/{id}/targets/preview
func (h *InsightsHandler) PreviewTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.materializer.PreviewTargets(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, targets)
}

// Materialize rebuilds and caches one insight's target set
// POST /api/insights/{id}/materialize
func (h *InsightsHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	targets, err := h.materializer.Materialize(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"insight_id": id,
		"targets":    len(targets),
	}).Info("Insight targets materialized")

	respondJSON(w, http.StatusOK, targets)
}
