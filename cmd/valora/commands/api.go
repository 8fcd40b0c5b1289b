package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagefolio/valora/internal/api"
	"github.com/vantagefolio/valora/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Serves the method registry, insight management and valuation preview
endpoints. Builtin method seeds are applied on startup so a fresh
database always has the shipped methods.

Endpoints:
  GET  /health                   - Health check
  GET  /api/methods              - List valuation methods
  GET  /api/valuation/preview    - Compute base and adjusted values
  POST /api/insights             - Create an insight

Example:
  go run ./cmd/valora api
  go run ./cmd/valora api --port 8090`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Valora API Server ===")

	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	// Override port if flag is set
	if apiPort != "" {
		svc.cfg.Port = apiPort
	}

	log := svc.log
	log.WithFields(map[string]interface{}{
		"port": svc.cfg.Port,
		"env":  svc.cfg.Env,
	}).Info("Initializing API server")

	// Apply builtin method seeds before serving
	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.seeder.ApplyDir(seedCtx, svc.cfg.Valuation.SeedDir); err != nil {
		cancelSeed()
		return fmt.Errorf("apply method seeds: %w", err)
	}
	cancelSeed()

	// Build handlers and router
	router := api.NewRouter(api.RouterDeps{
		Methods:    handlers.NewMethodsHandler(svc.registry, log),
		Insights:   handlers.NewInsightsHandler(svc.insightSvc, svc.materializer, log),
		Valuation:  handlers.NewValuationHandler(svc.engine, log),
		Overrides:  handlers.NewOverridesHandler(svc.overrideSvc, log),
		Limiter:    svc.limiter,
		Logger:     log,
		LocalRPS:   svc.cfg.Valuation.RateLimitRPS,
		LocalBurst: svc.cfg.Valuation.RateLimitBurst,
	})

	server := api.New(svc.cfg, log, router)

	// Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", svc.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
