package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/config"
)

// Version is set at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	// RootCmd is the root command for capwatch
	RootCmd = &cobra.Command{
		Use:   "capwatch",
		Short: "Report which apps are using the microphone, webcam or location",
		Long: `capwatch watches the Windows capability consent store and reports, as it
happens, which applications start or stop using a privacy-sensitive
capability such as the microphone, webcam or location.

It subscribes to the notification the system raises whenever a capability's
usage changes, re-reads the consent store, and prints the apps whose in-use
status changed. A SQLite mirror of the current state lets 'status' answer
without touching the registry.

Examples:
  # Watch the default capabilities in the foreground
  capwatch watch

  # Watch in the background
  capwatch watch --daemon

  # Show who has used the webcam
  capwatch sample webcam

  # Check the daemon and the mirrored live state
  capwatch status`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <config dir>/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: <config dir>/capwatch.db)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command
func Execute() error {
	return RootCmd.Execute()
}

// dataDir returns the capwatch state directory, creating it if needed.
func dataDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create capwatch directory: %w", err)
	}
	return dir, nil
}

// getConfigPath returns the config file path, using the flag value or default
func getConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.Path()
}

// getDBPath returns the database path: the flag, then the config file, then
// the default.
func getDBPath(cfg *config.Config) (string, error) {
	if dbPath != "" {
		return dbPath, nil
	}
	if cfg != nil && cfg.DBPath != "" {
		return cfg.DBPath, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "capwatch.db"), nil
}

// getDefaultPIDFile returns the default PID file path
func getDefaultPIDFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.pid"), nil
}

// getDefaultLogFile returns the default log file path
func getDefaultLogFile() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "watch.log"), nil
}
