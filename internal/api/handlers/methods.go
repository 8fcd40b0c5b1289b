package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/internal/methods"
	"github.com/vantagefolio/valora/pkg/logger"
)

// MethodsHandler handles valuation method API endpoints
// ⭐ SSOT: 밸류에이션 방법 API 핸들러는 이 구조체에서만
type MethodsHandler struct {
	registry *methods.Registry
	logger   *logger.Logger
}

// NewMethodsHandler creates a new methods handler
func NewMethodsHandler(registry *methods.Registry, log *logger.Logger) *MethodsHandler {
	return &MethodsHandler{
		registry: registry,
		logger:   log,
	}
}

// List returns registered methods
// GET /api/methods?q=&include_archived=
func (h *MethodsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := methods.ListFilter{
		Query:           r.URL.Query().Get("q"),
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
	}

	result, err := h.registry.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list methods")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Get returns one method with its versions
// GET /api/methods/{key}
func (h *MethodsHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	detail, err := h.registry.Get(r.Context(), key)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// CreateMethodRequest represents a custom method creation request
type CreateMethodRequest struct {
	MethodKey   string               `json:"method_key" validate:"required"`
	Name        string               `json:"name" validate:"required"`
	Description string               `json:"description"`
	AssetScope  contracts.AssetScope `json:"asset_scope"`
}

// Create registers a new custom method
// POST /api/methods
func (h *MethodsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.registry.CreateCustom(r.Context(), methods.CreateMethodInput{
		MethodKey:   req.MethodKey,
		Name:        req.Name,
		Description: req.Description,
		AssetScope:  req.AssetScope,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"method_key": req.MethodKey,
	}).Info("Custom method created")

	respondJSON(w, http.StatusCreated, detail)
}

// CloneMethodRequest represents a builtin clone request
type CloneMethodRequest struct {
	NewKey string `json:"new_key" validate:"required"`
	Name   string `json:"name"`
}

// Clone copies a builtin method into an editable custom method
// POST /api/methods/{key}/clone
func (h *MethodsHandler) Clone(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req CloneMethodRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.registry.CloneBuiltin(r.Context(), key, req.NewKey, req.Name)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"source": key,
		"clone":  req.NewKey,
	}).Info("Builtin method cloned")

	respondJSON(w, http.StatusCreated, detail)
}

// PublishVersionRequest represents a version draft
type PublishVersionRequest struct {
	EffectiveFrom *string                               `json:"effective_from"`
	EffectiveTo   *string                               `json:"effective_to"`
	Nodes         []contracts.ValuationMetricNode       `json:"nodes" validate:"required,min=1"`
	ParamSchema   map[string]float64                    `json:"param_schema"`
	MetricSchema  contracts.MetricSchema                `json:"metric_schema"`
	InputSchema   []contracts.ValuationMethodInputField `json:"input_schema"`
}

// Publish validates and appends a new version
// POST /api/methods/{key}/versions
func (h *MethodsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req PublishVersionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	from, ok := parseOptionalDate(w, req.EffectiveFrom, "effective_from")
	if !ok {
		return
	}
	to, ok := parseOptionalDate(w, req.EffectiveTo, "effective_to")
	if !ok {
		return
	}

	detail, err := h.registry.PublishVersion(r.Context(), key, methods.VersionDraft{
		EffectiveFrom: from,
		EffectiveTo:   to,
		Nodes:         req.Nodes,
		ParamSchema:   req.ParamSchema,
		MetricSchema:  req.MetricSchema,
		InputSchema:   req.InputSchema,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"method_key": key,
		"version":    detail.Versions[len(detail.Versions)-1].Version,
	}).Info("Method version published")

	respondJSON(w, http.StatusCreated, detail)
}

// SetActiveVersionRequest pins the active version pointer
type SetActiveVersionRequest struct {
	VersionID string `json:"version_id" validate:"required"`
}

// SetActiveVersion moves the active version pointer
// PUT /api/methods/{key}/active-version
func (h *MethodsHandler) SetActiveVersion(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req SetActiveVersionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.registry.SetActiveVersion(r.Context(), key, req.VersionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// InputSchemaRequest replaces a method's input declarations
type InputSchemaRequest struct {
	Fields []contracts.ValuationMethodInputField `json:"fields" validate:"required,min=1"`
}

// UpsertInputSchema replaces the input schema of the newest version
// PUT /api/methods/{key}/input-schema
func (h *MethodsHandler) UpsertInputSchema(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req InputSchemaRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	detail, err := h.registry.UpsertInputSchema(r.Context(), key, req.Fields)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, detail)
}

// Archive retires a method from default listings
// POST /api/methods/{key}/archive
func (h *MethodsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	detail, err := h.registry.Archive(r.Context(), key)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"method_key": key,
	}).Info("Method archived")

	respondJSON(w, http.StatusOK, detail)
}
