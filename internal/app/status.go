package app

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/output"
	"github.com/blackwell-systems/capwatch/internal/store"
	"github.com/blackwell-systems/capwatch/internal/watcher"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status and live capability usage",
	Long: `Display the current status of the capwatch daemon and the live state it
mirrors to the database.

Shows:
  • Daemon running status and PID
  • Database location
  • Watched capabilities and their state names
  • Apps currently using a watched capability

The live state is only as fresh as the last watch session. When no daemon is
running, use 'capwatch sample' to read the consent store directly.`,
	Example: `  # Check status
  capwatch status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	// Register with root command
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Get default paths
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		return fmt.Errorf("failed to get PID file path: %w", err)
	}

	resolvedDBPath, err := getDBPath(cfg)
	if err != nil {
		return fmt.Errorf("failed to get database path: %w", err)
	}

	// Check daemon status
	daemonRunning, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if daemonRunning {
		pid, _ := watcher.DaemonPID(pidFile)
		fmt.Fprintf(out, "Daemon:      %s (PID %d)\n", "running", pid)
	} else {
		fmt.Fprintf(out, "Daemon:      %s\n", "not running")
	}
	fmt.Fprintf(out, "Database:    %s\n", resolvedDBPath)

	if _, err := os.Stat(resolvedDBPath); os.IsNotExist(err) {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "No watch session has run yet. Start one with 'capwatch watch --daemon'.")
		return nil
	}

	db, err := store.New(resolvedDBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	infos, err := db.ListCapabilities()
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "No watch session has run yet. Start one with 'capwatch watch --daemon'.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list capabilities: %w", err)
	}

	records, err := db.InUse()
	if err != nil {
		return fmt.Errorf("failed to read live usage: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, output.RenderCapabilityTable(infos, countByCapability(records)))
	fmt.Fprintln(out)
	fmt.Fprint(out, output.RenderInUseSummary(records))

	if !daemonRunning && len(infos) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "The daemon is not running, so this state may be stale.")
	}
	return nil
}
