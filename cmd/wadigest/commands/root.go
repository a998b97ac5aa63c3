package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solvaholic/wadigest/internal/config"
	"github.com/solvaholic/wadigest/internal/logger"
)

var (
	// Global flags
	outputFormat string
	dbPath       string
	configPath   string
	logLevel     string

	settings config.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wadigest",
	Short: "Summarize WhatsApp group conversations",
	Long: `wadigest pulls recent messages from a WhatsApp group through the Green API
gateway, normalizes them and asks a language model for a structured digest.

  - digest: fetch, normalize and summarize a group, optionally posting the result
  - fetch: store new messages without summarizing
  - messages, summaries: query the local SQLite database
  - schedule: run digests periodically

Configuration is read from ~/.wadigest/config and environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, jsonl, text)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.wadigest/wadigest.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.wadigest/config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// setup loads configuration and initializes logging before every command
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	settings = cfg.Settings()

	if dbPath != "" {
		settings.DBPath = dbPath
	}
	if logLevel != "" {
		settings.Log.Level = logLevel
	}

	return logger.Init(logger.Config{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
		File:   settings.Log.File,
	})
}

// OutputJSON writes JSON to stdout with optional pretty printing
func OutputJSON(data any) error {
	var output []byte
	var err error

	if outputFormat == "json" {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Println(string(output))
	return nil
}

// OutputError writes error message to stderr
func OutputError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
