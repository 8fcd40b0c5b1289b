package handlers

import (
	"net/http"
	"time"

	"github.com/vantagefolio/valora/internal/valuation"
	"github.com/vantagefolio/valora/pkg/logger"
)

// ValuationHandler handles valuation preview API endpoints
// ⭐ SSOT: 밸류에이션 프리뷰 API 핸들러는 이 구조체에서만
type ValuationHandler struct {
	engine *valuation.Engine
	logger *logger.Logger
}

// NewValuationHandler creates a new valuation handler
func NewValuationHandler(engine *valuation.Engine, log *logger.Logger) *ValuationHandler {
	return &ValuationHandler{
		engine: engine,
		logger: log,
	}
}

// Preview computes base and adjusted values for one instrument
// GET /api/valuation/preview?symbol=&method=&as_of=
func (h *ValuationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		respondError(w, http.StatusBadRequest, "Missing 'symbol' query parameter")
		return
	}

	asOf := time.Now().UTC()
	if raw := q.Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'as_of' date format (expected YYYY-MM-DD)")
			return
		}
		asOf = parsed
	}

	preview, err := h.engine.ComputeBySymbol(r.Context(), symbol, q.Get("method"), asOf)
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"symbol": symbol,
		}).Error("Valuation preview failed")
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, preview)
}
