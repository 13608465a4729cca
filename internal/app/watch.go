package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"github.com/xlab/closer"

	"github.com/blackwell-systems/capwatch/internal/config"
	"github.com/blackwell-systems/capwatch/internal/monitor"
	"github.com/blackwell-systems/capwatch/internal/output"
	"github.com/blackwell-systems/capwatch/internal/store"
	"github.com/blackwell-systems/capwatch/internal/watcher"
)

var (
	watchDaemon      bool
	watchDaemonChild bool
	watchPIDFile     string
	watchLogFile     string
	watchStop        bool
	watchJSON        bool

	watchCmd = &cobra.Command{
		Use:   "watch [capability...]",
		Short: "Report apps as they start or stop using a capability",
		Long: `Subscribe to capability usage changes and print a line every time an
application starts or stops using one of the watched capabilities.

Capabilities default to the list in the config file (microphone, webcam and
location out of the box). Editing the config file while watching adds or
removes capabilities without a restart.

Watch modes:
  • Foreground (default): Run in current terminal with Ctrl+C to stop
  • Daemon: Run as background process, mirroring live state to the database
  • Stop: Stop a running daemon

On startup the apps already using each capability are listed.`,
		Example: `  # Run in foreground (Ctrl+C to stop)
  capwatch watch

  # Only the microphone, as JSON lines
  capwatch watch microphone --json

  # Run as background daemon
  capwatch watch --daemon

  # Stop running daemon
  capwatch watch --stop`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().StringVar(&watchPIDFile, "pid-file", "", "PID file path (default: <config dir>/watch.pid)")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "", "log file path (default: <config dir>/watch.log)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "stop running daemon")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "print events as JSON lines")

	// Hide the internal daemon-child flag from help
	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Get default paths if not specified
	if watchPIDFile == "" {
		defaultPID, err := getDefaultPIDFile()
		if err != nil {
			return fmt.Errorf("failed to get default PID file path: %w", err)
		}
		watchPIDFile = defaultPID
	}

	if watchLogFile == "" {
		defaultLog, err := getDefaultLogFile()
		if err != nil {
			return fmt.Errorf("failed to get default log file path: %w", err)
		}
		watchLogFile = defaultLog
	}

	// Handle stop command
	if watchStop {
		return stopWatchDaemon(cmd.OutOrStdout())
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Handle daemon mode
	if watchDaemon {
		return startWatchDaemon(cmd.OutOrStdout(), args)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	resolvedDBPath, err := getDBPath(cfg)
	if err != nil {
		return fmt.Errorf("failed to get database path: %w", err)
	}

	db, err := store.New(resolvedDBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.CreateSchema(); err != nil {
		db.Close()
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	w := newWatcher(cmd.OutOrStdout(), cfg, db, logger)
	capabilities := capabilityArgs(cfg, args)

	// Handle daemon child process
	if watchDaemonChild {
		return runWatchDaemonChild(w, db, capabilities)
	}

	// Run in foreground
	return runWatchForeground(cmd.OutOrStdout(), w, db, capabilities, len(args) == 0, logger)
}

// newWatcher builds a watcher that prints every event to out.
func newWatcher(out io.Writer, cfg *config.Config, db *store.Store, logger *slog.Logger) *watcher.Watcher {
	return watcher.New(watcher.Options{
		Store:   db,
		Sink:    eventPrinter(out, watchJSON, logger),
		Monitor: systemPlatform().monitorOptions(cfg, logger),
		Logger:  logger,
	})
}

// eventPrinter returns a sink writing one line per changed app, or one JSON
// object per event. Write failures are logged.
func eventPrinter(out io.Writer, asJSON bool, logger *slog.Logger) func(monitor.Event) {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	return func(e monitor.Event) {
		mu.Lock()
		defer mu.Unlock()

		if asJSON {
			if err := enc.Encode(e); err != nil {
				logger.Warn("failed to write event", "capability", e.Capability, "error", err)
			}
			return
		}
		for _, r := range e.Changed {
			if _, err := fmt.Fprintln(out, output.FormatChange(e.At, r)); err != nil {
				logger.Warn("failed to write event", "capability", e.Capability, "error", err)
				return
			}
		}
	}
}

func stopWatchDaemon(out io.Writer) error {
	// Check if daemon is running
	running, err := watcher.IsDaemonRunning(watchPIDFile)
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running {
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	spinner := output.NewSpinner("Stopping daemon...")
	spinner.Start()
	if err := watcher.StopDaemon(watchPIDFile); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to stop daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon stopped")

	return nil
}

// daemonArgs returns the flags the daemon child needs to see the same
// configuration as this process.
func daemonArgs(capabilities []string) []string {
	var args []string
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if dbPath != "" {
		args = append(args, "--db", dbPath)
	}
	if logLevel != "" {
		args = append(args, "--log-level", logLevel)
	}
	if logFormat != "" {
		args = append(args, "--log-format", logFormat)
	}
	args = append(args, "--pid-file", watchPIDFile)
	return append(args, capabilities...)
}

func startWatchDaemon(out io.Writer, capabilities []string) error {
	spinner := output.NewSpinner("Starting daemon...")
	spinner.Start()
	if err := watcher.StartDaemon(watchPIDFile, watchLogFile, daemonArgs(capabilities)...); err != nil {
		spinner.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	spinner.StopWithMessage("✓ Daemon started")

	fmt.Fprintf(out, "\nCapability watch daemon started\n")
	fmt.Fprintf(out, "  PID file: %s\n", watchPIDFile)
	fmt.Fprintf(out, "  Log file: %s\n", watchLogFile)
	fmt.Fprintf(out, "\nTo stop: capwatch watch --stop\n")

	return nil
}

func runWatchDaemonChild(w *watcher.Watcher, db *store.Store, capabilities []string) error {
	// This runs as the daemon child process
	// It should not print to stdout/stderr as they're redirected to log file
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})

	// closer owns the termination signals. Its hook only cancels and waits;
	// RunDaemon does the stopping and the database closes after it.
	closer.Bind(func() {
		cancel()
		<-finished
	})

	err := w.RunDaemon(ctx, watchPIDFile, capabilities)
	db.Close()
	close(finished)
	return err
}

func runWatchForeground(out io.Writer, w *watcher.Watcher, db *store.Store, capabilities []string, reload bool, logger *slog.Logger) error {
	fmt.Fprintln(out, "Starting capability watch (press Ctrl+C to stop)...")
	fmt.Fprintln(out)

	spinner := output.NewSpinner("Subscribing to capability changes...")
	spinner.Start()
	if err := w.Start(capabilities); err != nil {
		spinner.Stop()
		db.Close()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	spinner.StopWithMessage(fmt.Sprintf("✓ Watching %d capabilities", len(w.Capabilities())))

	fmt.Fprintln(out)
	fmt.Fprint(out, output.RenderInUseSummary(w.InUse()))
	fmt.Fprintln(out)

	ctx, cancel := context.WithCancel(context.Background())
	if reload {
		go watchConfig(ctx, w, logger)
	}

	closer.Bind(func() {
		cancel()
		if err := w.Stop(); err != nil {
			logger.Error("failed to stop watcher", "error", err)
		}
		db.Close()
		fmt.Fprintln(out, "Capability watch stopped")
	})
	closer.Hold()
	return nil
}

// watchConfig applies capability list edits to w until ctx is done.
// Capabilities named on the command line are not reloaded.
func watchConfig(ctx context.Context, w *watcher.Watcher, logger *slog.Logger) {
	path, err := getConfigPath()
	if err != nil {
		logger.Warn("config reload disabled", "error", err)
		return
	}

	err = config.Watch(ctx, path, 0, func(cfg *config.Config) {
		logger.Info("config changed", "capabilities", cfg.Capabilities)
		if err := w.Reconcile(cfg.Capabilities); err != nil {
			logger.Warn("failed to apply capability list", "error", err)
		}
	}, func(err error) {
		logger.Warn("failed to reload config", "error", err)
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("config reload stopped", "error", err)
	}
}
