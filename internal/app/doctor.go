package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/config"
	"github.com/blackwell-systems/capwatch/internal/logging"
	"github.com/blackwell-systems/capwatch/internal/store"
	"github.com/blackwell-systems/capwatch/internal/watcher"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your capwatch installation.

Checks:
  • The platform supports capability notifications
  • The consent store can be read
  • Every configured capability resolves to a state name that can be queried
  • Daemon is running
  • Database is accessible`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running capwatch diagnostics...")
	fmt.Fprintln(out)

	// Critical issues fail the command; warnings only get reported.
	criticalIssues := 0
	warningIssues := 0

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot load config:", err)
		return fmt.Errorf("diagnostics failed")
	}
	fmt.Fprintf(out, "✓ Config loaded (%d capabilities)\n", len(cfg.Capabilities))

	// Check 1: Platform
	if runtime.GOOS != "windows" || (runtime.GOARCH != "amd64" && runtime.GOARCH != "arm64") {
		fmt.Fprintf(out, "⚠ Unsupported platform %s/%s: capability notifications need 64-bit Windows\n", runtime.GOOS, runtime.GOARCH)
		warningIssues++
	} else {
		fmt.Fprintf(out, "✓ Platform %s/%s\n", runtime.GOOS, runtime.GOARCH)
	}

	// Check 2: Consent store readable
	p := systemPlatform()
	available, err := p.reader().Capabilities()
	if err != nil {
		fmt.Fprintln(out, "✗ Cannot read consent store:", err)
		criticalIssues++
	} else {
		fmt.Fprintf(out, "✓ Consent store readable (%d capabilities recorded)\n", len(available))
	}

	// Check 3: Every configured capability resolves and can be queried
	resolver := p.resolver()
	subscriber := p.subscriber(logging.Discard())
	for _, name := range cfg.Capabilities {
		stateName, err := resolver.Resolve(name)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", name, err)
			criticalIssues++
			continue
		}
		data, err := subscriber.Query(stateName)
		if err != nil {
			fmt.Fprintf(out, "✗ %s: state %#x cannot be queried: %v\n", name, stateName, err)
			criticalIssues++
			continue
		}
		fmt.Fprintf(out, "✓ %s: state %#x (stamp %d)\n", name, stateName, data.ChangeStamp)
	}

	// Check 4: Daemon running (warning only)
	warningIssues += checkDaemon(out)

	// Check 5: Database accessible (warning only, watch creates it)
	warningIssues += checkDatabase(out, cfg)

	fmt.Fprintln(out)
	if criticalIssues == 0 && warningIssues == 0 {
		fmt.Fprintln(out, "✓ All checks passed!")
		return nil
	}

	if criticalIssues > 0 {
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	}

	fmt.Fprintf(out, "Found %d warning(s). capwatch can still watch capabilities.\n", warningIssues)
	return nil
}

func checkDaemon(out io.Writer) int {
	pidFile, err := getDefaultPIDFile()
	if err != nil {
		fmt.Fprintln(out, "⚠ Failed to get PID file path:", err)
		return 1
	}

	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		fmt.Fprintln(out, "⚠ Failed to check daemon status:", err)
		return 1
	}
	if !running {
		fmt.Fprintln(out, "⚠ Daemon not running")
		fmt.Fprintln(out, "  Action: Run 'capwatch watch --daemon'")
		return 1
	}

	if pid, err := watcher.DaemonPID(pidFile); err == nil {
		fmt.Fprintf(out, "✓ Daemon running (PID %d)\n", pid)
	} else {
		fmt.Fprintln(out, "✓ Daemon running")
	}
	return 0
}

func checkDatabase(out io.Writer, cfg *config.Config) int {
	resolvedDBPath, err := getDBPath(cfg)
	if err != nil {
		fmt.Fprintln(out, "⚠ Database path error:", err)
		return 1
	}
	if _, err := os.Stat(resolvedDBPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "⚠ Database not found at:", resolvedDBPath)
		fmt.Fprintln(out, "  Action: Run 'capwatch watch' to create it")
		return 1
	}

	db, err := store.New(resolvedDBPath)
	if err != nil {
		fmt.Fprintln(out, "⚠ Cannot open database:", err)
		return 1
	}
	defer db.Close()

	infos, err := db.ListCapabilities()
	if errors.Is(err, store.ErrNotInitialized) {
		fmt.Fprintln(out, "⚠ Database has no schema yet")
		fmt.Fprintln(out, "  Action: Run 'capwatch watch' to create it")
		return 1
	}
	if err != nil {
		fmt.Fprintln(out, "⚠ Cannot read database:", err)
		return 1
	}
	fmt.Fprintf(out, "✓ Database accessible (%d capabilities mirrored)\n", len(infos))
	return 0
}
