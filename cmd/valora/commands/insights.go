package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// insightsCmd represents the insights command
var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Manage insight target materialization",
	Long: `Inspects and rebuilds materialized insight targets.

Subcommands:
  targets       - resolved target set of one insight
  materialize   - rebuild targets for one insight or all active ones

Example:
  go run ./cmd/valora insights targets 6f1c...
  go run ./cmd/valora insights materialize --all`,
}

var (
	materializeAll bool

	insightsTargetsCmd = &cobra.Command{
		Use:   "targets [insight_id]",
		Short: "Show the resolved target set",
		Args:  cobra.ExactArgs(1),
		RunE:  showTargets,
	}

	insightsMaterializeCmd = &cobra.Command{
		Use:   "materialize [insight_id]",
		Short: "Rebuild materialized targets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  materializeInsights,
	}
)

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.AddCommand(insightsTargetsCmd)
	insightsCmd.AddCommand(insightsMaterializeCmd)

	insightsMaterializeCmd.Flags().BoolVar(&materializeAll, "all", false, "rebuild every active insight")
}

func showTargets(cmd *cobra.Command, args []string) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	targets, err := svc.materializer.Targets(ctx, args[0])
	if err != nil {
		return fmt.Errorf("resolve targets: %w", err)
	}

	fmt.Printf("%-12s %s\n", "SYMBOL", "MATCHED RULES")
	for _, t := range targets {
		fmt.Printf("%-12s %v\n", t.Symbol, t.MatchedRuleIDs)
	}
	fmt.Printf("\n%d target(s)\n", len(targets))

	return nil
}

func materializeInsights(cmd *cobra.Command, args []string) error {
	if !materializeAll && len(args) == 0 {
		return fmt.Errorf("provide an insight ID or pass --all")
	}

	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if materializeAll {
		fmt.Println("Rebuilding targets for all active insights...")
		if err := svc.materializer.MaterializeAll(ctx, time.Now().UTC()); err != nil {
			return fmt.Errorf("materialize all: %w", err)
		}
		fmt.Println("✅ Done")
		return nil
	}

	targets, err := svc.materializer.Materialize(ctx, args[0])
	if err != nil {
		return fmt.Errorf("materialize: %w", err)
	}

	fmt.Printf("✅ Materialized %d target(s)\n", len(targets))
	return nil
}
