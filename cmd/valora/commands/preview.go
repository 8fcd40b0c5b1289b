package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// previewCmd represents the preview command
var previewCmd = &cobra.Command{
	Use:   "preview [symbol]",
	Short: "Compute a valuation preview for one instrument",
	Long: `Computes base and adjusted values for a single instrument.

Resolves the valuation method (explicit or by asset scope), cascades
the inputs, evaluates the metric graph and applies any active insight
effects, then prints the full breakdown.

Example:
  go run ./cmd/valora preview AAPL
  go run ./cmd/valora preview AAPL --method equity_factor_v1 --as-of 2026-08-28`,
	Args: cobra.ExactArgs(1),
	RunE: runPreview,
}

var (
	previewMethod string
	previewAsOf   string
)

func init() {
	rootCmd.AddCommand(previewCmd)

	previewCmd.Flags().StringVar(&previewMethod, "method", "", "method key (default: resolve by asset scope)")
	previewCmd.Flags().StringVar(&previewAsOf, "as-of", "", "valuation date YYYY-MM-DD (default: today)")
}

func runPreview(cmd *cobra.Command, args []string) error {
	symbol := args[0]

	asOf := time.Now().UTC()
	if previewAsOf != "" {
		parsed, err := time.Parse("2006-01-02", previewAsOf)
		if err != nil {
			return fmt.Errorf("invalid --as-of date (expected YYYY-MM-DD): %w", err)
		}
		asOf = parsed
	}

	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	preview, err := svc.engine.ComputeBySymbol(ctx, symbol, previewMethod, asOf)
	if err != nil {
		return fmt.Errorf("compute preview: %w", err)
	}

	fmt.Printf("=== Valuation Preview: %s ===\n\n", symbol)

	if preview.NotApplicable {
		fmt.Printf("Not applicable: %s\n", preview.Reason)
		return nil
	}

	fmt.Printf("Method:     %s (v%d)\n", preview.MethodKey, preview.Version)
	fmt.Printf("As of:      %s\n", preview.AsOfDate.Format("2006-01-02"))
	fmt.Printf("Confidence: %s\n", preview.Confidence)
	for _, reason := range preview.DegradationReasons {
		fmt.Printf("  - %s\n", reason)
	}

	fmt.Println("\nInputs:")
	for _, item := range preview.Inputs {
		value := "missing"
		if item.Value != nil {
			value = fmt.Sprintf("%.4f", *item.Value)
		}
		fmt.Printf("  %-20s %-10s source=%s quality=%s\n", item.Key, value, item.Source, item.Quality)
	}

	fmt.Println("\nApplied effects:")
	if len(preview.AppliedEffects) == 0 {
		fmt.Println("  (none)")
	}
	for _, effect := range preview.AppliedEffects {
		fmt.Printf("  %s %s %.4f on %s (insight %s)\n",
			effect.MetricKey, effect.Operator, effect.Value, effect.Stage, effect.InsightID)
	}

	fmt.Println()
	fmt.Printf("Base value (%s):     %s\n", preview.OutputKey, formatMetric(preview.BaseValue))
	fmt.Printf("Adjusted value (%s): %s\n", preview.OutputKey, formatMetric(preview.AdjustedValue))

	return nil
}

func formatMetric(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
