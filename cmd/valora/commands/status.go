package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagefolio/valora/internal/methods"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Long: `Checks connectivity and prints a system summary.

Displayed:
- Database health and pool statistics
- Redis availability
- Registered method and active insight counts

Example:
  go run ./cmd/valora status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Valora System Status ===")
	fmt.Println()

	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Database
	fmt.Println("🗄  Database")
	health, err := svc.db.HealthCheck(ctx)
	if err != nil {
		fmt.Printf("   Healthy:  false (%v)\n", err)
	} else {
		fmt.Printf("   Healthy:  %v\n", health.Healthy)
		fmt.Printf("   Latency:  %v\n", health.ResponseTime)
		fmt.Printf("   Conns:    %d/%d (idle %d)\n",
			health.Stats.TotalConns, health.Stats.MaxConns, health.Stats.IdleConns)
	}
	fmt.Println()

	// Redis
	fmt.Println("⚡ Redis")
	if svc.rdb.Enabled() {
		if err := svc.rdb.Redis().Ping(ctx).Err(); err != nil {
			fmt.Printf("   Healthy:  false (%v)\n", err)
		} else {
			fmt.Println("   Healthy:  true")
		}
	} else {
		fmt.Println("   Disabled")
	}
	fmt.Println()

	// Valuation methods
	fmt.Println("📐 Valuation Methods")
	list, err := svc.registry.List(ctx, methods.ListFilter{IncludeArchived: true})
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
	} else {
		builtin := 0
		for _, m := range list {
			if m.IsBuiltin {
				builtin++
			}
		}
		fmt.Printf("   Total:    %d\n", len(list))
		fmt.Printf("   Builtin:  %d\n", builtin)
		fmt.Printf("   Custom:   %d\n", len(list)-builtin)
	}
	fmt.Println()

	return nil
}
