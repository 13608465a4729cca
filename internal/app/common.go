package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/blackwell-systems/capwatch/internal/capability"
	"github.com/blackwell-systems/capwatch/internal/config"
	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/logging"
	"github.com/blackwell-systems/capwatch/internal/monitor"
	"github.com/blackwell-systems/capwatch/internal/wnf"
)

// platform bundles the native surfaces the commands talk to. Nil fields
// select the system implementation.
type platform struct {
	hive      consent.Hive
	activator capability.Activator
	wnf       wnf.Platform
}

// systemPlatform is replaced in tests.
var systemPlatform = func() platform {
	return platform{}
}

func (p platform) reader() *consent.Reader {
	return consent.NewReader(p.hive)
}

func (p platform) resolver() *capability.Resolver {
	return capability.NewResolver(p.activator)
}

func (p platform) subscriber(logger *slog.Logger) *wnf.Subscriber {
	return wnf.NewSubscriber(p.wnf, logger)
}

// monitorOptions returns the monitor template shared by every capability.
func (p platform) monitorOptions(cfg *config.Config, logger *slog.Logger) monitor.Options {
	return monitor.Options{
		Reader:        p.reader(),
		Resolver:      p.resolver(),
		Subscriber:    p.subscriber(logger),
		Logger:        logger,
		SuppressEmpty: cfg.SuppressEmpty,
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the diagnostic logger. Diagnostics go to stderr so that
// change lines and JSON on stdout stay machine-readable.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// capabilityArgs returns args, or the configured capabilities when args is
// empty.
func capabilityArgs(cfg *config.Config, args []string) []string {
	if len(args) == 0 {
		return cfg.Capabilities
	}
	return args
}
