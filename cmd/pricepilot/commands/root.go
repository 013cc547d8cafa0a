// Package commands provides the CLI commands for pricepilot.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pricepilot-ai/pricepilot/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
	configDir  string
)

var rootCmd = &cobra.Command{
	Use:   "pricepilot",
	Short: "PricePilot - pricing copilot chat pipeline",
	Long: `PricePilot drives an incremental chat session against the
pricing-copilot API: streamed responses, transcript management and
automatic fallback to blocking completion when streaming misbehaves.

Run 'pricepilot chat' for an interactive terminal session, or
'pricepilot serve' to expose the pipeline over HTTP.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; real config comes from files and PRICEPILOT_*.
		_ = godotenv.Load()

		logging.Init(logging.Config{
			Level:  logging.ParseLevel(logLevel),
			Pretty: prettyLogs,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&configDir, "directory", "", "Directory to load project config from")

	rootCmd.SetVersionTemplate(fmt.Sprintf("pricepilot %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the config directory from flag or current directory.
func GetWorkDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	return os.Getwd()
}
