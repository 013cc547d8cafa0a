// Package main provides the entry point for the pricepilot CLI.
package main

import (
	"os"

	"github.com/pricepilot-ai/pricepilot/cmd/pricepilot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
