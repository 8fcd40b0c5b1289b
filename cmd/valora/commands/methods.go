package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantagefolio/valora/internal/methods"
)

// methodsCmd represents the methods command
var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "Inspect valuation methods",
	Long: `Lists and inspects registered valuation methods.

Subcommands:
  list    - registered methods
  show    - one method with its versions

Example:
  go run ./cmd/valora methods list
  go run ./cmd/valora methods show equity_factor_v1`,
}

var (
	methodsIncludeArchived bool
	methodsQuery           string

	methodsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered methods",
		RunE:  listMethods,
	}

	methodsShowCmd = &cobra.Command{
		Use:   "show [method_key]",
		Short: "Show one method with versions",
		Args:  cobra.ExactArgs(1),
		RunE:  showMethod,
	}
)

func init() {
	rootCmd.AddCommand(methodsCmd)
	methodsCmd.AddCommand(methodsListCmd)
	methodsCmd.AddCommand(methodsShowCmd)

	methodsListCmd.Flags().BoolVar(&methodsIncludeArchived, "archived", false, "include archived methods")
	methodsListCmd.Flags().StringVar(&methodsQuery, "query", "", "filter by key or name substring")
}

func listMethods(cmd *cobra.Command, args []string) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	list, err := svc.registry.List(ctx, methods.ListFilter{
		Query:           methodsQuery,
		IncludeArchived: methodsIncludeArchived,
	})
	if err != nil {
		return fmt.Errorf("list methods: %w", err)
	}

	fmt.Printf("%-24s %-32s %-10s %s\n", "KEY", "NAME", "STATUS", "BUILTIN")
	for _, m := range list {
		fmt.Printf("%-24s %-32s %-10s %v\n", m.MethodKey, m.Name, m.Status, m.IsBuiltin)
	}
	fmt.Printf("\n%d method(s)\n", len(list))

	return nil
}

func showMethod(cmd *cobra.Command, args []string) error {
	svc, err := initServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	detail, err := svc.registry.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get method: %w", err)
	}

	m := detail.Method
	fmt.Printf("=== %s ===\n\n", m.MethodKey)
	fmt.Printf("Name:        %s\n", m.Name)
	fmt.Printf("Status:      %s\n", m.Status)
	fmt.Printf("Builtin:     %v\n", m.IsBuiltin)
	if m.Description != "" {
		fmt.Printf("Description: %s\n", m.Description)
	}

	active := detail.ActiveVersion()

	fmt.Println("\nVersions:")
	for _, v := range detail.Versions {
		marker := " "
		if active != nil && active.ID == v.ID {
			marker = "*"
		}
		fmt.Printf("  %s v%-3d nodes=%d inputs=%d\n", marker, v.Version, len(v.Nodes), len(v.InputSchema))
	}

	if active != nil {
		fmt.Println("\nActive graph:")
		for _, node := range active.Nodes {
			fmt.Printf("  [%-12s] %-20s formula=%s deps=%v\n", node.Layer, node.Key, node.FormulaID, node.DependsOn)
		}
	}

	return nil
}
