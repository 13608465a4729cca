package app

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/blackwell-systems/capwatch/internal/config"
)

func TestRootCommand(t *testing.T) {
	// Test that root command is properly configured
	if RootCmd.Use != "capwatch" {
		t.Errorf("expected Use to be 'capwatch', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}

	if !RootCmd.SilenceUsage || !RootCmd.SilenceErrors {
		t.Error("expected root command to silence usage and errors")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{"watch", "sample", "list", "status", "doctor"}
	foundCommands := make(map[string]bool)

	for _, cmd := range RootCmd.Commands() {
		foundCommands[cmd.Name()] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "db", "log-level", "log-format"} {
		if RootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected --%s flag to be registered", name)
		}
	}
}

func TestGetDBPath(t *testing.T) {
	ta := setupTestApp(t)
	dbPath = ""

	tests := []struct {
		name string
		flag string
		cfg  *config.Config
		want string
	}{
		{
			name: "flag wins",
			flag: "/tmp/flag.db",
			cfg:  &config.Config{DBPath: "/tmp/config.db"},
			want: "/tmp/flag.db",
		},
		{
			name: "config file",
			cfg:  &config.Config{DBPath: "/tmp/config.db"},
			want: "/tmp/config.db",
		},
		{
			name: "default",
			cfg:  config.Default(),
			want: filepath.Join(ta.dir, "capwatch", "capwatch.db"),
		},
		{
			name: "nil config",
			want: filepath.Join(ta.dir, "capwatch", "capwatch.db"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath = tt.flag
			defer func() { dbPath = "" }()

			got, err := getDBPath(tt.cfg)
			if err != nil {
				t.Fatalf("getDBPath: %v", err)
			}
			if got != tt.want {
				t.Errorf("getDBPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultDaemonPaths(t *testing.T) {
	ta := setupTestApp(t)

	pidFile, err := getDefaultPIDFile()
	if err != nil {
		t.Fatalf("getDefaultPIDFile: %v", err)
	}
	if want := filepath.Join(ta.dir, "capwatch", "watch.pid"); pidFile != want {
		t.Errorf("pid file = %q, want %q", pidFile, want)
	}

	logFile, err := getDefaultLogFile()
	if err != nil {
		t.Fatalf("getDefaultLogFile: %v", err)
	}
	if want := filepath.Join(ta.dir, "capwatch", "watch.log"); logFile != want {
		t.Errorf("log file = %q, want %q", logFile, want)
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	setupTestApp(t)

	cfg := config.Default()
	cfg.Capabilities = []string{"Microphone"}
	cfg.Log.Level = "warn"
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	logLevel = "debug"
	logFormat = "json"

	got, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if got.Log.Level != "debug" || got.Log.Format != "json" {
		t.Errorf("log = %+v, want debug/json from flags", got.Log)
	}
	if len(got.Capabilities) != 1 || got.Capabilities[0] != "microphone" {
		t.Errorf("capabilities = %v, want [microphone]", got.Capabilities)
	}
}

func TestLoadConfigRejectsBadLogLevel(t *testing.T) {
	setupTestApp(t)
	logLevel = "loud"

	if _, err := loadConfig(); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestDefaultPathFlagHelp(t *testing.T) {
	flags := map[string]string{
		"config":   RootCmd.PersistentFlags().Lookup("config").Usage,
		"db":       RootCmd.PersistentFlags().Lookup("db").Usage,
		"pid-file": watchCmd.Flags().Lookup("pid-file").Usage,
		"log-file": watchCmd.Flags().Lookup("log-file").Usage,
	}
	for name, usage := range flags {
		if strings.Contains(usage, "capwatch/") {
			t.Errorf("--%s help %q repeats the capwatch directory", name, usage)
		}
	}
}
