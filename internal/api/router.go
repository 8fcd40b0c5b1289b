package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/vantagefolio/valora/internal/api/handlers"
	"github.com/vantagefolio/valora/pkg/logger"
	"github.com/vantagefolio/valora/pkg/redis"
)

// RouterDeps bundles the handlers and shared middleware inputs
type RouterDeps struct {
	Methods   *handlers.MethodsHandler
	Insights  *handlers.InsightsHandler
	Valuation *handlers.ValuationHandler
	Overrides *handlers.OverridesHandler
	Limiter   *redis.RateLimiter
	Logger    *logger.Logger

	// Per-process throttle, from ValuationConfig
	LocalRPS   float64
	LocalBurst int
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(deps RouterDeps) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Valuation method endpoints
	api.HandleFunc("/methods", deps.Methods.List).Methods("GET")
	api.HandleFunc("/methods", deps.Methods.Create).Methods("POST")
	api.HandleFunc("/methods/{key}", deps.Methods.Get).Methods("GET")
	api.HandleFunc("/methods/{key}/clone", deps.Methods.Clone).Methods("POST")
	api.HandleFunc("/methods/{key}/versions", deps.Methods.Publish).Methods("POST")
	api.HandleFunc("/methods/{key}/active-version", deps.Methods.SetActiveVersion).Methods("PUT")
	api.HandleFunc("/methods/{key}/input-schema", deps.Methods.UpsertInputSchema).Methods("PUT")
	api.HandleFunc("/methods/{key}/archive", deps.Methods.Archive).Methods("POST")

	// Insight endpoints
	api.HandleFunc("/insights", deps.Insights.Create).Methods("POST")
	api.HandleFunc("/insights/{id}", deps.Insights.Get).Methods("GET")
	api.HandleFunc("/insights/{id}", deps.Insights.Update).Methods("PATCH")
	api.HandleFunc("/insights/{id}", deps.Insights.Delete).Methods("DELETE")
	api.HandleFunc("/insights/{id}/rules", deps.Insights.UpsertScopeRule).Methods("PUT")
	api.HandleFunc("/insights/{id}/rules/{ruleID}", deps.Insights.DeleteScopeRule).Methods("DELETE")
	api.HandleFunc("/insights/{id}/channels", deps.Insights.UpsertChannel).Methods("PUT")
	api.HandleFunc("/insights/{id}/channels/{channelID}", deps.Insights.DeleteChannel).Methods("DELETE")
	api.HandleFunc("/insights/{id}/channels/{channelID}/points", deps.Insights.ReplacePoints).Methods("PUT")
	api.HandleFunc("/insights/{id}/exclusions", deps.Insights.ExcludeTarget).Methods("POST")
	api.HandleFunc("/insights/{id}/exclusions/{symbol}", deps.Insights.RestoreTarget).Methods("DELETE")
	api.HandleFunc("/insights/{id}/targets", deps.Insights.Targets).Methods("GET")
	api.HandleFunc("/insights/{id}/targets/preview", deps.Insights.PreviewTargets).Methods("GET")
	api.Handle("/insights/{id}/materialize",
		rateLimitMiddleware(deps.Limiter, redis.MaterializeRateLimit, deps.Logger)(
			http.HandlerFunc(deps.Insights.Materialize))).Methods("POST")

	// Valuation preview (CPU-heavy, throttled)
	api.Handle("/valuation/preview",
		rateLimitMiddleware(deps.Limiter, redis.PreviewRateLimit, deps.Logger)(
			http.HandlerFunc(deps.Valuation.Preview))).Methods("GET")

	// Subjective override endpoints
	api.HandleFunc("/overrides", deps.Overrides.List).Methods("GET")
	api.HandleFunc("/overrides", deps.Overrides.Set).Methods("PUT")
	api.HandleFunc("/overrides", deps.Overrides.Clear).Methods("DELETE")

	// Apply middleware
	r.Use(loggingMiddleware(deps.Logger))
	r.Use(recoveryMiddleware(deps.Logger))
	r.Use(localThrottleMiddleware(deps.LocalRPS, deps.LocalBurst))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "valora-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// localThrottleMiddleware caps total request rate per process. The
// Redis limiter coordinates across processes; this one just keeps a
// single instance from being flooded when Redis is disabled.
func localThrottleMiddleware(rps float64, burst int) mux.MiddlewareFunc {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = int(rps) * 2
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware throttles one route with the shared Redis
// sliding window. Limiter failures fail open; the local throttle
// still bounds the damage.
func rateLimitMiddleware(limiter *redis.RateLimiter, cfg redis.RateLimitConfig, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				allowed, _, err := limiter.Allow(r.Context(), cfg)
				if err != nil {
					log.WithError(err).Warn("Rate limit check failed, allowing request")
				} else if !allowed {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusTooManyRequests)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Rate limit exceeded",
					})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
