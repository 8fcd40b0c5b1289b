package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply builtin method seeds",
	Long: `Applies the builtin valuation method seed files.

Reads every YAML file in the seed directory and publishes a new
version for any method whose seed content changed. Unchanged seeds
are skipped, so the command is safe to run repeatedly.

Example:
  go run ./cmd/valora seed
  go run ./cmd/valora seed --dir config/methods`,
	RunE: runSeed,
}

var seedDir string

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedDir, "dir", "", "seed directory (overrides VALUATION_SEED_DIR)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	dir := seedDir
	if dir == "" {
		dir = svc.cfg.Valuation.SeedDir
	}

	fmt.Printf("Applying method seeds from %s\n", dir)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := svc.seeder.ApplyDir(ctx, dir); err != nil {
		return fmt.Errorf("apply seeds: %w", err)
	}

	fmt.Println("✅ Seeds applied")
	return nil
}
