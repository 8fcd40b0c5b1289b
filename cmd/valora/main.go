package main

import (
	"os"

	"github.com/vantagefolio/valora/cmd/valora/commands"
)

// main is the entry point for the Valora CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/valora [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
